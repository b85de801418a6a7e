package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/eventbus"
	"github.com/weatheredge/nwp-signal-engine/internal/latency"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/objectstore"
	"github.com/weatheredge/nwp-signal-engine/internal/schedule"
)

// wireIngestion subscribes the orchestrator to DETECTION_WINDOW_START
// (starts polling for a newly-opened run window) and FORECAST_UPDATED
// (folds the arbiter's accepted reading into the shared store and run
// history).
func (o *Orchestrator) wireIngestion() {
	o.bus.Subscribe(eventbus.DetectionWindowStart, o.handleDetectionWindowStart)
	o.bus.Subscribe(eventbus.ForecastUpdated, o.handleForecastUpdated)
}

func (o *Orchestrator) handleDetectionWindowStart(evt eventbus.Event) error {
	sched, ok := evt.Payload.(schedule.Schedule)
	if !ok {
		return nil
	}

	expected, err := o.scheduler.GetExpectedFile(sched.Model, sched.CycleHour, sched.RunDate)
	if err != nil {
		o.logger.Warn("orchestrator: no expected file for scheduled run",
			zap.String("model", string(sched.Model)), zap.Int("cycle_hour", sched.CycleHour), zap.Error(err))
		return nil
	}

	file := objectstore.ExpectedFile{
		Bucket:       expected.Bucket,
		Key:          expected.Key,
		Region:       expected.Region,
		Model:        expected.Model,
		CycleHour:    expected.CycleHour,
		ForecastHour: expected.ForecastHour,
	}
	window := objectstore.Window{
		RunDate:             sched.RunDate,
		WindowStart:         sched.Window.WindowStart,
		ExpectedPublishTime: sched.Window.ExpectedPublishTime,
		MaxDuration:         sched.Window.MaxDuration,
	}

	traceID := newTraceID()
	o.latency.Start(traceID, latency.StartMeta{Model: sched.Model, CycleHour: sched.CycleHour})
	o.latency.Record(traceID, model.FieldModelPublish, window.ExpectedPublishTime)

	o.mu.Lock()
	ctx := o.runCtx
	o.mu.Unlock()
	o.detector.WarmUp(ctx, file)
	o.detector.StartDetection(ctx, file, window, traceID, objectstore.Handlers{})
	return nil
}

func (o *Orchestrator) handleForecastUpdated(evt eventbus.Event) error {
	update, ok := evt.Payload.(model.ForecastUpdate)
	if !ok {
		return nil
	}

	runDate := update.RunDate
	if runDate.IsZero() {
		runDate = update.Timestamp.UTC().Truncate(24 * time.Hour)
	}

	o.runs.AddRun(model.RunRecord{
		Model:          update.Model,
		CycleHour:      update.CycleHour,
		RunDate:        runDate,
		CityID:         update.CityID,
		MaxTempC:       update.TempC,
		PrecipFlag:     update.PrecipFlag,
		PrecipAmountMm: update.PrecipAmountMm,
		Timestamp:      update.Timestamp,
		Source:         update.Source,
	})

	for _, state := range o.dataStore.GetAllMarkets() {
		if state.Market.City != update.CityID {
			continue
		}
		value, ok := forecastValueForMarket(state.Market, update)
		if !ok {
			continue
		}
		o.dataStore.UpdateForecast(state.Market.MarketID, value, update.Timestamp, update.Source,
			state.Market.Threshold, o.cfg.SpeedArbMinCrossingDistanceF)
		o.metrics.RecordForecast(string(update.Model), string(state.Market.MetricType))
	}
	return nil
}

// forecastValueForMarket converts a city-level update into the value
// scale a market's threshold is expressed in: Fahrenheit for temperature
// families, inches or millimeters for precipitation depending on the
// market's declared unit.
func forecastValueForMarket(market model.Market, update model.ForecastUpdate) (float64, bool) {
	switch market.MetricType {
	case model.MetricTempHigh, model.MetricTempLow, model.MetricTempThreshold, model.MetricTempRange:
		return update.TempC*9/5 + 32, true
	case model.MetricPrecipitation, model.MetricSnowfall:
		if market.Unit == model.UnitInches {
			return update.PrecipAmountMm / 25.4, true
		}
		return update.PrecipAmountMm, true
	default:
		return 0, false
	}
}
