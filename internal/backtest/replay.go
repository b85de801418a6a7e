// Package backtest replays recorded ingestion and pricing events through
// the live components (EventBus, IngestionArbiter, DataStore, both
// strategies, the simulated exchange) to exercise the engine's literal
// end-to-end scenarios, adapted from pkg/trader/backtest's historical
// price-point replay loop.
package backtest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/arbiter"
	"github.com/weatheredge/nwp-signal-engine/internal/eventbus"
	"github.com/weatheredge/nwp-signal-engine/internal/exchange"
	"github.com/weatheredge/nwp-signal-engine/internal/executor"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/objectstore"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
	"github.com/weatheredge/nwp-signal-engine/internal/strategy"
)

// Runner wires one instance of every live component a scenario needs,
// the way Orchestrator does for production, minus the schedule clock and
// object-store polling (a scenario injects FILE_CONFIRMED/
// API_DATA_RECEIVED/forecast values directly instead of waiting for them
// to arrive over the network).
type Runner struct {
	Bus        *eventbus.Bus
	DataStore  *store.DataStore
	Runs       *store.RunHistoryStore
	Arbiter    *arbiter.Arbiter
	Speed      *strategy.SpeedStrategy
	Confidence *strategy.ConfidenceStrategy
	Executor   *executor.Executor
	Exchange   *exchange.SimulationExchange
}

// NewRunner builds a Runner with default strategy/executor configuration,
// logging to logger (a no-op logger if nil).
func NewRunner(logger *zap.Logger) *Runner {
	return NewRunnerWithExecutorConfig(logger, executor.DefaultConfig())
}

// NewRunnerWithExecutorConfig is NewRunner with an overridden executor
// configuration, for scenarios that need a shorter cooldown than
// production defaults to stay fast.
func NewRunnerWithExecutorConfig(logger *zap.Logger, execCfg executor.Config) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	bus := eventbus.New(logger, 4)
	ds := store.New()
	runs := store.NewRunHistoryStore(20)
	arb := arbiter.New(bus, logger)

	speed := strategy.NewSpeedStrategy(ds, strategy.DefaultSpeedConfig(), logger)
	confidence := strategy.NewConfidenceStrategy(ds, runs, strategy.DefaultConfidenceConfig(), logger)

	ex := exchange.NewSimulationExchange(logger)
	exec := executor.New(ex, ds, execCfg, logger)

	r := &Runner{
		Bus:        bus,
		DataStore:  ds,
		Runs:       runs,
		Arbiter:    arb,
		Speed:      speed,
		Confidence: confidence,
		Executor:   exec,
		Exchange:   ex,
	}

	bus.Subscribe(eventbus.ForecastUpdated, r.foldForecastUpdate)
	return r
}

// AddMarket registers a market and seeds its YES/NO price history so
// strategies have a current price to compute edge against.
func (r *Runner) AddMarket(market model.Market) {
	r.DataStore.AddMarket(market)
	now := time.Now()
	r.DataStore.UpdatePrice(market.YesTokenID, market.YesPrice, now)
	r.DataStore.UpdatePrice(market.NoTokenID, market.NoPrice, now)
}

// PushForecast injects a forecast value directly into the store, the way
// a confirmed GRIB extraction or API observation ultimately does once
// arbitrated.
func (r *Runner) PushForecast(marketID string, value float64, ts time.Time, source model.Source, threshold, deadBand float64) (model.ForecastSnapshot, bool) {
	return r.DataStore.UpdateForecast(marketID, value, ts, source, threshold, deadBand)
}

// PushRun records a model run directly into run history, for confidence
// scenarios that don't need the full file-confirmation path.
func (r *Runner) PushRun(run model.RunRecord) {
	r.Runs.AddRun(run)
}

// EmitFileConfirmed publishes FILE_CONFIRMED on the bus, driving the
// arbiter's acceptFile path and, transitively, FORECAST_UPDATED into the
// run history and store via foldForecastUpdate.
func (r *Runner) EmitFileConfirmed(confirmed objectstore.ConfirmedEvent) {
	r.Bus.Emit(eventbus.Event{Type: eventbus.FileConfirmed, Payload: confirmed})
}

// EmitAPIData publishes API_DATA_RECEIVED on the bus, driving the
// arbiter's fallback path.
func (r *Runner) EmitAPIData(obs model.APIObservation) {
	r.Bus.Emit(eventbus.Event{Type: eventbus.APIDataReceived, Payload: obs})
}

// foldForecastUpdate is the scenario harness's stand-in for
// Orchestrator.handleForecastUpdated: it records the accepted reading
// into run history only, leaving DataStore.UpdateForecast to individual
// scenarios that care about a specific market's threshold crossing
// (mirroring production's per-market unit conversion, which a city-wide
// scenario fixture has no single market to target without also knowing
// that market's metric/unit).
func (r *Runner) foldForecastUpdate(evt eventbus.Event) error {
	update, ok := evt.Payload.(model.ForecastUpdate)
	if !ok {
		return nil
	}
	runDate := update.RunDate
	if runDate.IsZero() {
		runDate = update.Timestamp.UTC().Truncate(24 * time.Hour)
	}
	r.Runs.AddRun(model.RunRecord{
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
	return nil
}

// LastUpdateSource returns the Source of the first model's (HRRR, RAP,
// GFS, then ECMWF) newest run-history record for cityID that matches
// cycleHour and runDate, for scenarios asserting arbitration outcomes.
func (r *Runner) LastUpdateSource(cityID string, cycleHour int, runDate time.Time) (model.Source, bool) {
	for _, mdl := range []model.Model{model.ModelHRRR, model.ModelRAP, model.ModelGFS, model.ModelECMWF} {
		latest := r.Runs.GetLastKRuns(cityID, mdl, 1)
		if len(latest) == 0 {
			continue
		}
		if latest[0].CycleHour == cycleHour && latest[0].RunDate.Equal(runDate) {
			return latest[0].Source, true
		}
	}
	return "", false
}

// Tick evaluates both strategies against now and returns their raw
// signals, unmerged, so a scenario can assert on either strategy
// independently.
func (r *Runner) Tick(now time.Time) (speedSignals, confidenceSignals []model.EntrySignal) {
	return r.Speed.Evaluate(now), r.Confidence.Evaluate(now)
}

// Execute runs signals through the executor, the way
// Orchestrator.RunOnce does for a production tick.
func (r *Runner) Execute(ctx context.Context, signals []model.EntrySignal) []executor.ExecutionResult {
	return r.Executor.ExecuteBatch(ctx, signals)
}

// SeedFill records a synthetic fill in the simulation exchange at price,
// so the executor's slippage guard has a current price to compare
// against that matches a scenario's stated market price.
func (r *Runner) SeedFill(ctx context.Context, marketID, tokenID string, side model.Side, price decimal.Decimal) {
	r.Exchange.SubmitOrder(ctx, exchange.OrderRequest{
		MarketID: marketID,
		TokenID:  tokenID,
		Side:     side,
		Price:    price,
		Size:     decimal.NewFromInt(1),
	})
}
