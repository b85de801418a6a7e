// Package arbiter implements IngestionArbiter (C6): per-city source
// arbitration between the authoritative FILE path and the
// lower-confidence API fallback, and the fallback-polling lifecycle
// tied to DETECTION_WINDOW_START/FILE_CONFIRMED.
//
// The RWMutex-guarded per-key state map and subscribe-handler wiring
// style is grounded on pkg/trader/orchestrator/orchestrator.go's event
// callback registration.
package arbiter

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/eventbus"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/objectstore"
	"github.com/weatheredge/nwp-signal-engine/internal/schedule"
)

// fallbackMaxDuration bounds how long an API fallback stays armed for a
// (model, cycleHour) after DETECTION_WINDOW_START, absent a
// FILE_CONFIRMED to stop it (spec §4.6: "≈ 5 min").
const fallbackMaxDuration = 5 * time.Minute

// cityState is the per-(city, cycleBucket) arbitration record.
type cityState struct {
	lastUpdateSource model.Source
	lastUpdateTime   time.Time
	lastModel        model.Model
}

// cycleBucket groups run windows that compete for the same city update,
// independent of which model produced them: the synoptic 6-hour window
// (00/06/12/18Z) a cycle hour falls into, combined with the run date.
// This is an Open Question resolution (SPEC_FULL.md §9): the spec names
// the "(city, cycleBucket)" key without defining cycleBucket's exact
// granularity.
func cycleBucket(runDate time.Time, cycleHour int) string {
	window := (cycleHour / 6) * 6
	return fmt.Sprintf("%s/%02d", runDate.UTC().Format("20060102"), window)
}

type stateKey struct {
	cityID string
	bucket string
}

// Arbiter is IngestionArbiter (C6).
type Arbiter struct {
	bus    *eventbus.Bus
	logger *zap.Logger

	mu     sync.RWMutex
	states map[stateKey]*cityState

	fallbackMu sync.Mutex
	fallbacks  map[string]*fallbackTimer // key: model|cycleHour
}

type fallbackTimer struct {
	stop chan struct{}
}

// New constructs an Arbiter and subscribes it to FILE_CONFIRMED,
// API_DATA_RECEIVED, and DETECTION_WINDOW_START on bus.
func New(bus *eventbus.Bus, logger *zap.Logger) *Arbiter {
	a := &Arbiter{
		bus:       bus,
		logger:    logger,
		states:    make(map[stateKey]*cityState),
		fallbacks: make(map[string]*fallbackTimer),
	}
	if bus != nil {
		bus.Subscribe(eventbus.FileConfirmed, a.handleFileConfirmed)
		bus.Subscribe(eventbus.APIDataReceived, a.handleAPIData)
		bus.Subscribe(eventbus.DetectionWindowStart, a.handleDetectionWindowStart)
	}
	return a
}

func (a *Arbiter) handleFileConfirmed(evt eventbus.Event) error {
	confirmed, ok := evt.Payload.(objectstore.ConfirmedEvent)
	if !ok {
		return nil
	}
	a.stopFallback(confirmed.File.Model, confirmed.File.CycleHour)

	for _, city := range confirmed.Result.CityData {
		a.acceptFile(city, confirmed)
	}
	return nil
}

func (a *Arbiter) acceptFile(city model.CityData, confirmed objectstore.ConfirmedEvent) {
	bucket := cycleBucket(confirmed.RunDate, confirmed.File.CycleHour)
	key := stateKey{cityID: city.CityID, bucket: bucket}
	now := time.Now()

	a.mu.Lock()
	existing, hasExisting := a.states[key]
	// Rule 3: the first FILE_CONFIRMED in a detection window wins for
	// that cycle; a later FILE_CONFIRMED from a different model does not
	// overwrite an already-authoritative FILE record.
	if hasExisting && existing.lastUpdateSource == model.SourceFile && existing.lastModel != confirmed.File.Model {
		a.mu.Unlock()
		if a.logger != nil {
			a.logger.Info("arbiter: rejecting later FILE_CONFIRMED, first model already authoritative",
				zap.String("city", city.CityID), zap.String("winning_model", string(existing.lastModel)),
				zap.String("rejected_model", string(confirmed.File.Model)))
		}
		return
	}

	a.states[key] = &cityState{
		lastUpdateSource: model.SourceFile,
		lastUpdateTime:   now,
		lastModel:        confirmed.File.Model,
	}
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Emit(eventbus.Event{Type: eventbus.ForecastUpdated, Payload: model.ForecastUpdate{
			CityID:         city.CityID,
			Model:          confirmed.File.Model,
			CycleHour:      confirmed.File.CycleHour,
			RunDate:        confirmed.RunDate,
			TempC:          city.TempC,
			PrecipAmountMm: city.TotalPrecipMm,
			Confidence:     model.ConfidenceHigh,
			Source:         model.SourceFile,
			Timestamp:      now,
		}})
	}
}

func (a *Arbiter) handleAPIData(evt eventbus.Event) error {
	obs, ok := evt.Payload.(model.APIObservation)
	if !ok {
		return nil
	}

	bucket := cycleBucket(obs.RunDate, obs.CycleHour)
	key := stateKey{cityID: obs.CityID, bucket: bucket}

	a.mu.Lock()
	existing, hasExisting := a.states[key]
	if hasExisting && existing.lastUpdateSource == model.SourceFile {
		a.mu.Unlock()
		if a.logger != nil {
			a.logger.Debug("arbiter: rejecting API data, FILE already authoritative for this window",
				zap.String("city", obs.CityID))
		}
		return nil
	}

	now := time.Now()
	a.states[key] = &cityState{
		lastUpdateSource: model.SourceAPI,
		lastUpdateTime:   now,
		lastModel:        obs.Model,
	}
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Emit(eventbus.Event{Type: eventbus.ForecastUpdated, Payload: model.ForecastUpdate{
			CityID:         obs.CityID,
			Model:          obs.Model,
			CycleHour:      obs.CycleHour,
			RunDate:        obs.RunDate,
			TempC:          obs.TempC,
			PrecipFlag:     obs.PrecipFlag,
			PrecipAmountMm: obs.PrecipAmountMm,
			Confidence:     model.ConfidenceLow,
			Source:         model.SourceAPI,
			Timestamp:      now,
		}})
	}
	return nil
}

// handleDetectionWindowStart arms a fallback timer for (model,
// cycleHour): if no FILE_CONFIRMED arrives for this run within
// fallbackMaxDuration, the timer simply expires and is discarded —
// the fallback's own API_DATA_RECEIVED traffic is driven externally,
// this only bounds how long the arbiter treats it as "armed".
func (a *Arbiter) handleDetectionWindowStart(evt eventbus.Event) error {
	sched, ok := evt.Payload.(schedule.Schedule)
	if !ok {
		return nil
	}
	a.armFallback(sched.Model, sched.CycleHour)
	return nil
}

func fallbackKey(mdl model.Model, cycleHour int) string {
	return fmt.Sprintf("%s|%d", mdl, cycleHour)
}

func (a *Arbiter) armFallback(mdl model.Model, cycleHour int) {
	key := fallbackKey(mdl, cycleHour)
	timer := &fallbackTimer{stop: make(chan struct{})}

	a.fallbackMu.Lock()
	if existing, ok := a.fallbacks[key]; ok {
		close(existing.stop)
	}
	a.fallbacks[key] = timer
	a.fallbackMu.Unlock()

	go func() {
		select {
		case <-time.After(fallbackMaxDuration):
			a.fallbackMu.Lock()
			if a.fallbacks[key] == timer {
				delete(a.fallbacks, key)
			}
			a.fallbackMu.Unlock()
		case <-timer.stop:
		}
	}()
}

func (a *Arbiter) stopFallback(mdl model.Model, cycleHour int) {
	key := fallbackKey(mdl, cycleHour)
	a.fallbackMu.Lock()
	defer a.fallbackMu.Unlock()
	if existing, ok := a.fallbacks[key]; ok {
		close(existing.stop)
		delete(a.fallbacks, key)
	}
}

// IsFallbackArmed reports whether an API fallback is currently armed
// for (model, cycleHour) — exposed for tests and for the fallback
// collaborator to check before funneling API_DATA_RECEIVED events.
func (a *Arbiter) IsFallbackArmed(mdl model.Model, cycleHour int) bool {
	a.fallbackMu.Lock()
	defer a.fallbackMu.Unlock()
	_, ok := a.fallbacks[fallbackKey(mdl, cycleHour)]
	return ok
}
