package arbiter

import (
	"testing"
	"time"

	"github.com/weatheredge/nwp-signal-engine/internal/eventbus"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/objectstore"
	"github.com/weatheredge/nwp-signal-engine/internal/schedule"
)

var runDate = time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

func TestFileConfirmedAlwaysUpdatesAndPropagates(t *testing.T) {
	bus := eventbus.New(nil, 1)
	defer bus.Close()
	a := New(bus, nil)

	var updates []model.ForecastUpdate
	bus.Subscribe(eventbus.ForecastUpdated, func(e eventbus.Event) error {
		updates = append(updates, e.Payload.(model.ForecastUpdate))
		return nil
	})

	a.handleFileConfirmed(eventbus.Event{Payload: objectstore.ConfirmedEvent{
		File:    objectstore.ExpectedFile{Model: model.ModelHRRR, CycleHour: 12},
		RunDate: runDate,
		Result: model.ExtractResult{CityData: []model.CityData{
			{CityID: "chicago", TempC: 10.0},
		}},
	}})

	if len(updates) != 1 {
		t.Fatalf("len(updates) = %d, want 1", len(updates))
	}
	if updates[0].Confidence != model.ConfidenceHigh {
		t.Fatalf("confidence = %v, want HIGH", updates[0].Confidence)
	}
	if !updates[0].RunDate.Equal(runDate) {
		t.Fatalf("RunDate = %v, want %v", updates[0].RunDate, runDate)
	}
}

func TestAPIDataRejectedAfterFileConfirmedSameWindow(t *testing.T) {
	bus := eventbus.New(nil, 1)
	defer bus.Close()
	a := New(bus, nil)

	a.handleFileConfirmed(eventbus.Event{Payload: objectstore.ConfirmedEvent{
		File:    objectstore.ExpectedFile{Model: model.ModelHRRR, CycleHour: 12},
		RunDate: runDate,
		Result: model.ExtractResult{CityData: []model.CityData{
			{CityID: "chicago", TempC: 10.0},
		}},
	}})

	var updates []model.ForecastUpdate
	bus.Subscribe(eventbus.ForecastUpdated, func(e eventbus.Event) error {
		updates = append(updates, e.Payload.(model.ForecastUpdate))
		return nil
	})

	a.handleAPIData(eventbus.Event{Payload: model.APIObservation{
		CityID:    "chicago",
		Model:     "Tomorrow.io",
		CycleHour: 12,
		RunDate:   runDate,
		TempC:     99.0,
	}})

	if len(updates) != 0 {
		t.Fatalf("expected API data to be rejected after FILE was authoritative, got %d updates", len(updates))
	}

	a.mu.RLock()
	key := stateKey{cityID: "chicago", bucket: cycleBucket(runDate, 12)}
	st := a.states[key]
	a.mu.RUnlock()
	if st.lastUpdateSource != model.SourceFile {
		t.Fatalf("lastUpdateSource = %v, want FILE (unchanged by rejected API data)", st.lastUpdateSource)
	}
}

// TestFileArbitrationUsesRunDateNotWallClock proves the FILE path buckets
// on the run's own RunDate rather than time.Now(): a FILE_CONFIRMED
// processed well after midnight UTC for a run dated the previous day must
// still collide with an API observation bearing that same RunDate.
func TestFileArbitrationUsesRunDateNotWallClock(t *testing.T) {
	bus := eventbus.New(nil, 1)
	defer bus.Close()
	a := New(bus, nil)

	staleRunDate := runDate.Add(-36 * time.Hour) // a different UTC calendar day than "now"

	a.handleFileConfirmed(eventbus.Event{Payload: objectstore.ConfirmedEvent{
		File:    objectstore.ExpectedFile{Model: model.ModelHRRR, CycleHour: 12},
		RunDate: staleRunDate,
		Result: model.ExtractResult{CityData: []model.CityData{
			{CityID: "chicago", TempC: 10.0},
		}},
	}})

	var updates []model.ForecastUpdate
	bus.Subscribe(eventbus.ForecastUpdated, func(e eventbus.Event) error {
		updates = append(updates, e.Payload.(model.ForecastUpdate))
		return nil
	})

	a.handleAPIData(eventbus.Event{Payload: model.APIObservation{
		CityID:    "chicago",
		Model:     "Tomorrow.io",
		CycleHour: 12,
		RunDate:   staleRunDate,
		TempC:     99.0,
	}})

	if len(updates) != 0 {
		t.Fatalf("expected API data for the same run date to be rejected, got %d updates", len(updates))
	}
}

func TestSecondModelDoesNotOverwriteFirstAuthoritativeFile(t *testing.T) {
	bus := eventbus.New(nil, 1)
	defer bus.Close()
	a := New(bus, nil)

	a.handleFileConfirmed(eventbus.Event{Payload: objectstore.ConfirmedEvent{
		File:    objectstore.ExpectedFile{Model: model.ModelHRRR, CycleHour: 12},
		RunDate: runDate,
		Result: model.ExtractResult{CityData: []model.CityData{
			{CityID: "chicago", TempC: 10.0},
		}},
	}})

	var updates []model.ForecastUpdate
	bus.Subscribe(eventbus.ForecastUpdated, func(e eventbus.Event) error {
		updates = append(updates, e.Payload.(model.ForecastUpdate))
		return nil
	})

	a.handleFileConfirmed(eventbus.Event{Payload: objectstore.ConfirmedEvent{
		File:    objectstore.ExpectedFile{Model: model.ModelRAP, CycleHour: 12},
		RunDate: runDate,
		Result: model.ExtractResult{CityData: []model.CityData{
			{CityID: "chicago", TempC: 99.0},
		}},
	}})

	if len(updates) != 0 {
		t.Fatalf("expected second model's FILE_CONFIRMED to be rejected, got %d updates", len(updates))
	}
}

func TestDetectionWindowStartArmsFallbackAndFileConfirmedStopsIt(t *testing.T) {
	bus := eventbus.New(nil, 1)
	defer bus.Close()
	a := New(bus, nil)

	a.handleDetectionWindowStart(eventbus.Event{Payload: schedule.Schedule{Model: model.ModelHRRR, CycleHour: 12, RunDate: runDate}})
	if !a.IsFallbackArmed(model.ModelHRRR, 12) {
		t.Fatal("expected fallback to be armed")
	}

	a.handleFileConfirmed(eventbus.Event{Payload: objectstore.ConfirmedEvent{
		File:    objectstore.ExpectedFile{Model: model.ModelHRRR, CycleHour: 12},
		RunDate: runDate,
	}})
	if a.IsFallbackArmed(model.ModelHRRR, 12) {
		t.Fatal("expected fallback to be disarmed after FILE_CONFIRMED")
	}
}
