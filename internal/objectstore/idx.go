// Index sidecar parsing and smart range download, grounded on spec §4.2 /
// §6: GRIB .idx files are a text format, one record per line,
// "recNum:startByte:date:var:level:forecast:" with optional trailing
// fields. The byte range for a record runs from its startByte to the
// startByte of the next record minus one, or to the end of the file for
// the last record.
package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// idxRecord is one parsed line of a .idx sidecar.
type idxRecord struct {
	recNum    int
	startByte int64
	variable  string
	level     string
}

// wantedVariables is the fixed set of GRIB variable/level pairs
// GribExtractor needs (spec §6 "Variables extracted").
var wantedVariables = []struct {
	variable string
	level    string
}{
	{"TMP", "2 m above ground"},
	{"UGRD", "10 m above ground"},
	{"VGRD", "10 m above ground"},
	{"APCP", ""},
	{"PRATE", ""},
}

func matchesWanted(variable, level string) bool {
	for _, w := range wantedVariables {
		if w.variable != variable {
			continue
		}
		if w.level == "" || w.level == level {
			return true
		}
	}
	return false
}

// parseIdx parses a .idx sidecar's text body into its records, in file
// order. Lines that don't fit the expected format are skipped rather
// than treated as fatal, since trailing blank lines are common.
func parseIdx(body []byte) []idxRecord {
	lines := strings.Split(string(body), "\n")
	records := make([]idxRecord, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 5 {
			continue
		}
		recNum, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		startByte, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		records = append(records, idxRecord{
			recNum:    recNum,
			startByte: startByte,
			variable:  parts[3],
			level:     parts[4],
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].startByte < records[j].startByte })
	return records
}

// byteRange is one [start, end] inclusive span to fetch.
type byteRange struct {
	start, end int64
}

// selectRanges maps the sorted idx records onto the byte ranges covering
// every record that matches wantedVariables. fileSize supplies the end
// byte for whichever record is last in the file.
func selectRanges(records []idxRecord, fileSize int64) []byteRange {
	var ranges []byteRange
	for i, rec := range records {
		if !matchesWanted(rec.variable, rec.level) {
			continue
		}
		end := fileSize - 1
		if i+1 < len(records) {
			end = records[i+1].startByte - 1
		}
		ranges = append(ranges, byteRange{start: rec.startByte, end: end})
	}
	return ranges
}

// fetchIdxWithRetry fetches and parses the .idx sidecar for key,
// retrying up to 3 times with a 150ms backoff per spec §4.2. Returns
// (nil, nil) rather than an error when the sidecar is absent after
// retries, since that's a normal fallback trigger, not a failure.
func fetchIdxWithRetry(ctx context.Context, client Client, bucket, key string) ([]idxRecord, error) {
	const (
		maxAttempts = 3
		backoff     = 150 * time.Millisecond
	)
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, err := client.Get(ctx, bucket, key+".idx")
		if err == nil {
			return parseIdx(body), nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr == ErrNotFound {
		return nil, nil
	}
	return nil, fmt.Errorf("objectstore: fetch idx %s/%s.idx after %d attempts: %w", bucket, key, maxAttempts, lastErr)
}

// smartRangeDownload attempts to fetch only the GRIB records
// GribExtractor needs, via the .idx sidecar. It returns (nil, false,
// nil) when the sidecar is missing or matches nothing, signalling the
// caller to fall back to a full download. Range fetches share ctx: a
// failure in any one aborts the whole batch, per spec §5's
// shared-cancellation-scope rule.
func smartRangeDownload(ctx context.Context, client Client, bucket, key string, fileSize int64) ([]byte, bool, error) {
	records, err := fetchIdxWithRetry(ctx, client, bucket, key)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}

	ranges := selectRanges(records, fileSize)
	if len(ranges) == 0 {
		return nil, false, nil
	}

	rangeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		idx  int
		data []byte
		err  error
	}
	results := make(chan result, len(ranges))
	for i, r := range ranges {
		go func(i int, r byteRange) {
			data, err := client.GetRange(rangeCtx, bucket, key, r.start, r.end)
			results <- result{idx: i, data: data, err: err}
		}(i, r)
	}

	chunks := make([][]byte, len(ranges))
	for range ranges {
		res := <-results
		if res.err != nil {
			cancel()
			return nil, false, fmt.Errorf("objectstore: range fetch %d of %s/%s: %w", res.idx, bucket, key, res.err)
		}
		chunks[res.idx] = res.data
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	buf := make([]byte, 0, total)
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	return buf, true, nil
}
