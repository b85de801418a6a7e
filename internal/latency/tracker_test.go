package latency

import (
	"testing"
	"time"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

func TestDerivedLatencyIsSignedDifferenceWhenBothEndpointsPresent(t *testing.T) {
	tr := New(nil, time.Second, 10)
	base := time.Now()

	tr.Start("t1", StartMeta{Model: model.ModelHRRR})
	tr.Record("t1", model.FieldFileDetected, base)
	tr.Record("t1", model.FieldParseStart, base.Add(10*time.Millisecond))
	tr.Record("t1", model.FieldParseEnd, base.Add(35*time.Millisecond))
	tr.Record("t1", model.FieldOrderSubmit, base.Add(100*time.Millisecond))
	tr.Record("t1", model.FieldOrderConfirm, base.Add(250*time.Millisecond))

	trace, ok := tr.Complete("t1")
	if !ok {
		t.Fatal("Complete returned ok=false")
	}
	lat := trace.DerivedLatencies()
	if lat.Parse == nil || *lat.Parse != 25*time.Millisecond {
		t.Fatalf("parse latency = %v, want 25ms", lat.Parse)
	}
	if lat.Execution == nil || *lat.Execution != 150*time.Millisecond {
		t.Fatalf("execution latency = %v, want 150ms", lat.Execution)
	}
	if lat.Total == nil || *lat.Total != 250*time.Millisecond {
		t.Fatalf("total latency = %v, want 250ms", lat.Total)
	}
	if lat.Strategy != nil {
		t.Fatal("strategy latency should be nil: neither endpoint was recorded")
	}
}

func TestSecondFieldRecordIsNoOp(t *testing.T) {
	tr := New(nil, time.Second, 10)
	base := time.Now()

	tr.Start("t1", StartMeta{})
	tr.Record("t1", model.FieldFileDetected, base)
	tr.Record("t1", model.FieldFileDetected, base.Add(time.Hour))

	trace, _ := tr.Complete("t1")
	if got := trace.Timestamps[model.FieldFileDetected]; !got.Equal(base) {
		t.Fatalf("second Record call should not overwrite the first, got %v want %v", got, base)
	}
}

func TestGetStatsComputesPercentilesOverRing(t *testing.T) {
	tr := New(nil, time.Hour, 100)
	base := time.Now()

	for i := 1; i <= 100; i++ {
		id := time.Duration(i).String()
		tr.Start(id, StartMeta{})
		tr.Record(id, model.FieldFileDetected, base)
		tr.Record(id, model.FieldOrderConfirm, base.Add(time.Duration(i)*time.Millisecond))
		tr.Complete(id)
	}

	stats := tr.GetStats()
	if stats.Count != 100 {
		t.Fatalf("count = %d, want 100", stats.Count)
	}
	if stats.P50 < 40*time.Millisecond || stats.P50 > 60*time.Millisecond {
		t.Fatalf("p50 = %v, expected roughly around 50ms", stats.P50)
	}
	if stats.P99 < stats.P50 {
		t.Fatal("p99 should be >= p50")
	}
}

func TestCompleteUnknownTraceReturnsFalse(t *testing.T) {
	tr := New(nil, time.Second, 10)
	if _, ok := tr.Complete("missing"); ok {
		t.Fatal("Complete on unknown trace should return ok=false")
	}
}
