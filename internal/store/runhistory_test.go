package store

import (
	"testing"
	"time"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

func TestAddRunIgnoresDuplicateCycle(t *testing.T) {
	s := NewRunHistoryStore(5)
	runDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.AddRun(model.RunRecord{Model: model.ModelHRRR, CityID: "seattle", CycleHour: 12, RunDate: runDate, MaxTempC: 18.0})
	s.AddRun(model.RunRecord{Model: model.ModelHRRR, CityID: "seattle", CycleHour: 12, RunDate: runDate, MaxTempC: 99.0})

	runs := s.GetLastKRuns("seattle", model.ModelHRRR, 5)
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1 (duplicate cycle should be ignored)", len(runs))
	}
	if runs[0].MaxTempC != 18.0 {
		t.Fatalf("MaxTempC = %v, want 18.0 (first insert wins)", runs[0].MaxTempC)
	}
}

func TestAddRunKeepsNewestFirstBoundedBySize(t *testing.T) {
	s := NewRunHistoryStore(2)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s.AddRun(model.RunRecord{
			Model: model.ModelHRRR, CityID: "chicago",
			CycleHour: i, RunDate: base, MaxTempC: float64(i),
		})
	}

	runs := s.GetLastKRuns("chicago", model.ModelHRRR, 5)
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2 (bounded by buffer size)", len(runs))
	}
	if runs[0].MaxTempC != 2 || runs[1].MaxTempC != 1 {
		t.Fatalf("runs not newest-first: %+v", runs)
	}
}

func TestIsFirstRun(t *testing.T) {
	s := NewRunHistoryStore(5)
	if !s.IsFirstRun("seattle", model.ModelHRRR) {
		t.Fatal("expected IsFirstRun=true with zero runs")
	}

	s.AddRun(model.RunRecord{Model: model.ModelHRRR, CityID: "seattle", CycleHour: 0, RunDate: time.Now(), MaxTempC: 18.0})
	if !s.IsFirstRun("seattle", model.ModelHRRR) {
		t.Fatal("expected IsFirstRun=true with exactly one run")
	}

	s.AddRun(model.RunRecord{Model: model.ModelHRRR, CityID: "seattle", CycleHour: 1, RunDate: time.Now(), MaxTempC: 19.0})
	if s.IsFirstRun("seattle", model.ModelHRRR) {
		t.Fatal("expected IsFirstRun=false with two runs")
	}
}
