// Package latency implements the per-trace timestamp recorder (C5):
// start/record/complete the Trace lifecycle defined in internal/model,
// and expose percentile statistics over a bounded ring of completed
// traces. Percentiles are computed in-process over that ring; the package
// exports no Prometheus histogram. The percentile-oriented design is
// grounded in pkg/trader/metrics/metrics.go's TradingMetrics.
package latency

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

// StartMeta is the optional identifying metadata attached when a trace
// begins.
type StartMeta struct {
	Model     model.Model
	CycleHour int
	MarketID  string
}

// Stats summarizes completed-trace latency over the tracked ring.
type Stats struct {
	Count         int
	Avg           time.Duration
	P50           time.Duration
	P95           time.Duration
	P99           time.Duration
	PerStageAvgs  map[string]time.Duration
}

// Tracker is the owning singleton for active and completed traces. All
// mutating operations are serialized by mu, matching the
// owner-serializes-access pattern spec §9 calls for.
type Tracker struct {
	logger              *zap.Logger
	slowTraceThreshold  time.Duration
	ringSize            int

	mu      sync.Mutex
	active  map[string]*model.Trace
	ring    []completedEntry
	ringPos int
	ringLen int
}

type completedEntry struct {
	total     time.Duration
	hasTotal  bool
	stages    map[string]time.Duration
}

// New constructs a Tracker. slowTraceThreshold governs the loud-log gate;
// ringSize bounds the completed-trace window used for percentile stats.
func New(logger *zap.Logger, slowTraceThreshold time.Duration, ringSize int) *Tracker {
	if ringSize <= 0 {
		ringSize = 500
	}
	return &Tracker{
		logger:             logger,
		slowTraceThreshold: slowTraceThreshold,
		ringSize:           ringSize,
		active:             make(map[string]*model.Trace),
		ring:               make([]completedEntry, ringSize),
	}
}

// Start begins tracking a new trace.
func (t *Tracker) Start(traceID string, meta StartMeta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := model.NewTrace(traceID)
	tr.Model = meta.Model
	tr.CycleHour = meta.CycleHour
	tr.MarketID = meta.MarketID
	t.active[traceID] = tr
}

// Record stamps field for traceID. If ts is the zero value, time.Now() is
// used. Recording an already-recorded field is a no-op (each field is
// recorded at most once, per the Trace invariant).
func (t *Tracker) Record(traceID string, field model.TraceField, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[traceID]
	if !ok {
		return
	}
	if _, already := tr.Timestamps[field]; already {
		return
	}
	tr.Timestamps[field] = ts
}

// Complete finalizes traceID, folds it into the completed-trace ring for
// percentile computation, and returns the trace. A second Complete call
// for the same traceID returns (nil, false).
func (t *Tracker) Complete(traceID string) (*model.Trace, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.active[traceID]
	if !ok {
		return nil, false
	}
	delete(t.active, traceID)

	derived := tr.DerivedLatencies()
	entry := completedEntry{stages: make(map[string]time.Duration)}
	if derived.Total != nil {
		entry.total = *derived.Total
		entry.hasTotal = true
	}
	if derived.Detection != nil {
		entry.stages["detection"] = *derived.Detection
	}
	if derived.Parse != nil {
		entry.stages["parse"] = *derived.Parse
	}
	if derived.Event != nil {
		entry.stages["event"] = *derived.Event
	}
	if derived.Strategy != nil {
		entry.stages["strategy"] = *derived.Strategy
	}
	if derived.Execution != nil {
		entry.stages["execution"] = *derived.Execution
	}

	t.ring[t.ringPos] = entry
	t.ringPos = (t.ringPos + 1) % t.ringSize
	if t.ringLen < t.ringSize {
		t.ringLen++
	}

	if entry.hasTotal && t.slowTraceThreshold > 0 && entry.total > t.slowTraceThreshold && t.logger != nil {
		t.logger.Warn("latency: slow trace",
			zap.String("trace_id", traceID),
			zap.Duration("total", entry.total),
			zap.Duration("threshold", t.slowTraceThreshold))
	}

	return tr, true
}

// GetStats computes percentile and per-stage average statistics over the
// current completed-trace ring.
func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	totals := make([]time.Duration, 0, t.ringLen)
	stageSums := make(map[string]time.Duration)
	stageCounts := make(map[string]int)
	for i := 0; i < t.ringLen; i++ {
		e := t.ring[i]
		if e.hasTotal {
			totals = append(totals, e.total)
		}
		for k, v := range e.stages {
			stageSums[k] += v
			stageCounts[k]++
		}
	}
	t.mu.Unlock()

	stats := Stats{Count: len(totals), PerStageAvgs: make(map[string]time.Duration)}
	if len(totals) == 0 {
		return stats
	}

	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })

	var sum time.Duration
	for _, d := range totals {
		sum += d
	}
	stats.Avg = sum / time.Duration(len(totals))
	stats.P50 = percentile(totals, 0.50)
	stats.P95 = percentile(totals, 0.95)
	stats.P99 = percentile(totals, 0.99)

	for k, sum := range stageSums {
		stats.PerStageAvgs[k] = sum / time.Duration(stageCounts[k])
	}
	return stats
}

// percentile returns the value at rank p (0..1) of a slice already
// sorted ascending.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
