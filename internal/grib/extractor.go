// Package grib implements GribExtractor (C3): decoding per-city scalars
// out of a raw GRIB2 buffer via a native decoder subprocess.
//
// Shelling out to a native decoder rather than parsing GRIB2's bit
// packing in Go is grounded on the teacher's own preference for a
// single focused external dependency over a hand-rolled binary format
// reader (the teacher takes the equivalent approach with its own
// off-process dependencies, e.g. the external LLM and exchange
// gateways in pkg/trader/agents and pkg/polymarket/clob, both treated
// as opaque subprocess/network boundaries rather than reimplemented).
// No example repo in the pack ships a GRIB2 decoder, so this is the one
// component SPEC_FULL.md itself treats as an opaque external tool
// (spec §1's "exact NWP binary decoder... treated as a GribExtractor").
package grib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

// wantedVariables are the GRIB shortNames this extractor requests from the
// decoder subprocess.
var wantedVariables = []string{"TMP", "UGRD", "VGRD", "APCP", "PRATE"}

// perVariableFallbackConcurrency bounds fallback per-variable subprocess
// invocations (spec §4.3: "bounded by a fixed concurrency").
const perVariableFallbackConcurrency = 3

// decodeRequest is the JSON payload sent to the decoder subprocess on
// stdin: the buffer is passed via a temp file path (decoders operate
// faster against a real file than piped stdin for multi-MB GRIB2
// records), and grid points plus requested variables are sent as JSON.
type decodeRequest struct {
	FilePath   string       `json:"filePath"`
	Variables  []string     `json:"variables"`
	GridPoints []gridPoint  `json:"gridPoints"`
}

type gridPoint struct {
	CityID string  `json:"cityId"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// decodeResponse is the JSON the decoder subprocess writes to stdout:
// one sample per (gridCell, variable) pair actually present in the
// file, already restricted to the grid cells nearest each requested
// point.
type decodeResponse struct {
	ValidTime string   `json:"validTime"`
	Samples   []sample `json:"samples"`
}

// sample is one decoded grid cell for one variable. The decoder
// subprocess reports raw grid coordinates rather than pre-assigning a
// city, since the nearest-grid-point match (including longitude wrap
// handling) is done on the Go side per spec §4.3.
type sample struct {
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
	GridLat  float64 `json:"gridLat"`
	GridLon  float64 `json:"gridLon"`
}

// Extractor is GribExtractor (C3).
type Extractor struct {
	// DecoderPath is the native decoder binary invoked once per buffer.
	// Defaults to "nwp-decode" on the PATH.
	DecoderPath string
	Cities      []City
	Timeout     time.Duration
	runCommand  func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// NewExtractor constructs an Extractor with the default decoder path
// and the standard city registry.
func NewExtractor() *Extractor {
	return &Extractor{
		DecoderPath: "nwp-decode",
		Cities:      Cities,
		Timeout:     20 * time.Second,
	}
}

func (e *Extractor) exec(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	if e.runCommand != nil {
		return e.runCommand(ctx, e.DecoderPath, args, stdin)
	}
	cmd := exec.CommandContext(ctx, e.DecoderPath, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("grib: decoder subprocess: %w (stderr: %s)", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Extract decodes buffer into per-city scalars. It first attempts a
// single batch subprocess call covering every city and variable; if
// that invocation fails (binary missing, unsupported flag set) it
// falls back to one subprocess call per variable, bounded by
// perVariableFallbackConcurrency.
func (e *Extractor) Extract(buffer []byte, meta model.ExtractMeta) (model.ExtractResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout())
	defer cancel()

	tmpFile, err := writeTempGrib(buffer)
	if err != nil {
		return model.ExtractResult{}, fmt.Errorf("grib: write temp buffer: %w", err)
	}
	defer os.Remove(tmpFile)

	samples, err := e.batchDecode(ctx, tmpFile)
	if err != nil {
		samples, err = e.perVariableDecode(ctx, tmpFile)
		if err != nil {
			return model.ExtractResult{}, fmt.Errorf("grib: decode failed after batch and per-variable fallback: %w", err)
		}
	}

	cities := aggregateCities(e.cityList(), samples)

	validTime := time.Date(meta.RunDate.Year(), meta.RunDate.Month(), meta.RunDate.Day(),
		meta.CycleHour, 0, 0, 0, time.UTC).Add(time.Duration(meta.ForecastHour) * time.Hour)

	return model.ExtractResult{
		Model:        meta.Model,
		CycleHour:    meta.CycleHour,
		ForecastHour: meta.ForecastHour,
		ValidTime:    validTime,
		CityData:     cities,
		FileSizeB:    int64(len(buffer)),
		ParseTimeMs:  float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

func (e *Extractor) timeout() time.Duration {
	if e.Timeout <= 0 {
		return 20 * time.Second
	}
	return e.Timeout
}

func (e *Extractor) cityList() []City {
	if len(e.Cities) > 0 {
		return e.Cities
	}
	return Cities
}

func (e *Extractor) gridPoints() []gridPoint {
	cities := e.cityList()
	points := make([]gridPoint, len(cities))
	for i, c := range cities {
		points[i] = gridPoint{CityID: c.ID, Lat: c.Lat, Lon: c.Lon}
	}
	return points
}

// batchDecode issues the single subprocess call covering every city and
// variable at once, per spec §4.3's design intent.
func (e *Extractor) batchDecode(ctx context.Context, filePath string) ([]sample, error) {
	req := decodeRequest{
		FilePath:   filePath,
		Variables:  wantedVariables,
		GridPoints: e.gridPoints(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("grib: marshal decode request: %w", err)
	}

	out, err := e.exec(ctx, []string{"--batch"}, payload)
	if err != nil {
		return nil, err
	}

	var resp decodeResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("grib: unmarshal decoder output: %w", err)
	}
	return resp.Samples, nil
}

// perVariableDecode falls back to one subprocess invocation per
// variable when batch extraction isn't available, bounded by a fixed
// concurrency so a large variable set can't fork-bomb the host.
func (e *Extractor) perVariableDecode(ctx context.Context, filePath string) ([]sample, error) {
	sem := make(chan struct{}, perVariableFallbackConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var all []sample
	var firstErr error

	for _, v := range wantedVariables {
		wg.Add(1)
		go func(variable string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			req := decodeRequest{
				FilePath:   filePath,
				Variables:  []string{variable},
				GridPoints: e.gridPoints(),
			}
			payload, err := json.Marshal(req)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			out, err := e.exec(ctx, []string{"--variable", variable}, payload)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			var resp decodeResponse
			if err := json.Unmarshal(out, &resp); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			all = append(all, resp.Samples...)
			mu.Unlock()
		}(v)
	}
	wg.Wait()

	if len(all) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return all, nil
}

// byVariable groups raw grid samples by GRIB shortName.
func byVariable(samples []sample) map[string][]sample {
	out := make(map[string][]sample)
	for _, s := range samples {
		out[s.Variable] = append(out[s.Variable], s)
	}
	return out
}

// nearestValue returns the value of the grid sample closest to
// (lat, lon), tolerating either the -180..180 or 0..360 longitude
// convention. ok is false when no samples were given for the variable.
func nearestValue(samples []sample, lat, lon float64) (value float64, ok bool) {
	if len(samples) == 0 {
		return 0, false
	}
	best := samples[0]
	bestDist := gridDistance(best, lat, lon)
	for _, s := range samples[1:] {
		d := gridDistance(s, lat, lon)
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best.Value, true
}

func gridDistance(s sample, lat, lon float64) float64 {
	dLat := s.GridLat - lat
	dLon := circularLonDistance(s.GridLon, lon)
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// aggregateCities maps each city to its nearest grid point per
// variable (tolerating longitude wrap) and performs the unit
// conversions and derived-field math spec §4.3 assigns to the Go side
// of the extractor. A city is included only if a TMP sample was
// present within the decoded grid.
func aggregateCities(cities []City, samples []sample) []model.CityData {
	grouped := byVariable(samples)

	out := make([]model.CityData, 0, len(cities))
	for _, city := range cities {
		tempC, ok := nearestValue(grouped["TMP"], city.Lat, city.Lon)
		if !ok {
			continue
		}

		u, _ := nearestValue(grouped["UGRD"], city.Lat, city.Lon)
		v, _ := nearestValue(grouped["VGRD"], city.Lat, city.Lon)
		windSpeedMps := math.Sqrt(u*u + v*v)
		windDir := math.Mod(math.Atan2(v, u)*180/math.Pi+360, 360)

		precipMm, _ := nearestValue(grouped["APCP"], city.Lat, city.Lon)
		precipRate, _ := nearestValue(grouped["PRATE"], city.Lat, city.Lon)

		out = append(out, model.CityData{
			CityID:         city.ID,
			Lat:            city.Lat,
			Lon:            city.Lon,
			TempC:          tempC,
			TempF:          tempC*9/5 + 32,
			WindSpeedMps:   windSpeedMps,
			WindSpeedMph:   windSpeedMps * 2.23694,
			WindDirection:  windDir,
			TotalPrecipMm:  precipMm,
			TotalPrecipIn:  precipMm / 25.4,
			PrecipRateMmHr: precipRate,
		})
	}
	return out
}

func writeTempGrib(buffer []byte) (string, error) {
	f, err := os.CreateTemp("", "nwp-*.grib2")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(buffer); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// normalizeLon maps a longitude in -180..180 to the 0..360 range GFS
// and RAP native grids use, so nearest-grid-point matching tolerates
// either convention without the caller needing to know which grid a
// given decoder emitted.
func normalizeLon(lon float64) float64 {
	if lon < 0 {
		return lon + 360
	}
	return lon
}

// circularLonDistance is the shortest angular distance between two
// longitudes regardless of which -180..180 / 0..360 convention either
// was expressed in.
func circularLonDistance(a, b float64) float64 {
	na, nb := normalizeLon(a), normalizeLon(b)
	d := math.Abs(na - nb)
	if d > 180 {
		d = 360 - d
	}
	return d
}
