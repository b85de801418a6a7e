package metrics

import "testing"

func TestNewRegistersAllCollectors(t *testing.T) {
	m := New()
	if m.Registry() == nil {
		t.Fatal("expected a non-nil registry")
	}
	gathered, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}
	if len(gathered) == 0 {
		t.Fatal("expected registered collectors to be gatherable even before any are observed")
	}
}

func TestRecordHelpersDoNotPanic(t *testing.T) {
	m := New()
	m.RecordDetection("hrrr", "file", 12.5)
	m.RecordForecast("hrrr", "temp_high")
	m.RecordEnsemble("temp_high", 1.2, 2.1, 3)
	m.RecordSignal("speed", "YES", 0.08, 1.0)
	m.RecordOrder("YES", "confirmed", 42, 0.3)
	m.RecordReject("PRICE_SLIPPAGE")
	m.UpdatePosition("yes1", "chicago-high-60", 10, 6.2)
	m.RecordWorkflow("ok")
	m.RecordStage("detect", 0.01)
	m.UpdateActiveMarkets(7)
}

func TestDefaultReturnsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatal("expected Default() to return the same instance")
	}
}
