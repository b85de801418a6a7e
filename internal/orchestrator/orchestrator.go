// Package orchestrator wires every component into the running signal
// engine: schedule-driven detection, forecast ingestion into the shared
// store, strategy evaluation, and order execution, grounded on
// pkg/trader/orchestrator/orchestrator.go's stage/loop/callback shape
// (DiscoveryLoop/ForecastLoop/MonitorLoop generalized to this domain's
// event-driven ingestion plus a polled trading loop).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/arbiter"
	"github.com/weatheredge/nwp-signal-engine/internal/config"
	"github.com/weatheredge/nwp-signal-engine/internal/eventbus"
	"github.com/weatheredge/nwp-signal-engine/internal/exchange"
	"github.com/weatheredge/nwp-signal-engine/internal/exchange/discovery"
	"github.com/weatheredge/nwp-signal-engine/internal/executor"
	"github.com/weatheredge/nwp-signal-engine/internal/grib"
	"github.com/weatheredge/nwp-signal-engine/internal/latency"
	"github.com/weatheredge/nwp-signal-engine/internal/metrics"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/objectstore"
	"github.com/weatheredge/nwp-signal-engine/internal/schedule"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
	"github.com/weatheredge/nwp-signal-engine/internal/strategy"
)

// runHistorySize is the per-(city, model) circular buffer depth, large
// enough to cover runsConsidered (5) plus headroom for stability checks
// that look further back.
const runHistorySize = 20

// tradingLoopInterval governs how often strategies are evaluated and
// signals executed. The object-store detector itself is never throttled
// by this (spec §4.1); this only paces the downstream strategy/executor
// pass.
const tradingLoopInterval = 2 * time.Second

// scheduleCheckInterval governs how often schedule.Manager re-evaluates
// upcoming runs.
const scheduleCheckInterval = 10 * time.Second

// Orchestrator composes the full signal engine: ingestion (schedule,
// objectstore, grib, arbiter) feeding the shared store, and the trading
// loop (strategies, executor, exchange) consuming it.
type Orchestrator struct {
	cfg    config.Config
	logger *zap.Logger

	bus       *eventbus.Bus
	scheduler *schedule.Manager
	detector  *objectstore.Detector
	extractor *grib.Extractor
	arb       *arbiter.Arbiter
	latency   *latency.Tracker

	dataStore *store.DataStore
	runs      *store.RunHistoryStore

	speed      *strategy.SpeedStrategy
	confidence *strategy.ConfidenceStrategy
	executor   *executor.Executor
	exchange   exchange.MarketExchange
	metrics    *metrics.SignalMetrics
	discovery  *discovery.Client

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	runCtx  context.Context
}

// New wires every component per cfg. ctx is used only for the
// construction-time calls that need one (the objectstore client's AWS
// config load); it is not retained.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bus := eventbus.New(logger, 8)
	latencyTracker := latency.New(logger, cfg.LatencySlowTraceThreshold, cfg.LatencyStatsWindowSize)

	osClient, err := objectstore.NewClient(ctx, objectstore.ClientConfig{
		Region:    cfg.ObjectStoreRegion,
		Anonymous: cfg.ObjectStoreAnonymous,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build object store client: %w", err)
	}

	gribExtractor := grib.NewExtractor()
	detector := objectstore.New(osClient, gribExtractor, bus, logger, latencyTracker, cfg.PollInterval)
	scheduler := schedule.New(bus, logger)
	arb := arbiter.New(bus, logger)

	dataStore := store.New()
	runHistory := store.NewRunHistoryStore(runHistorySize)

	speedCfg := strategy.DefaultSpeedConfig()
	speedCfg.MinEdge = cfg.MinEdgeThresholdSpeed
	speedCfg.DeadBandF = cfg.SpeedArbMinCrossingDistanceF
	speedStrategy := strategy.NewSpeedStrategy(dataStore, speedCfg, logger)

	confCfg := strategy.DefaultConfidenceConfig()
	confidenceStrategy := strategy.NewConfidenceStrategy(dataStore, runHistory, confCfg, logger)

	var ex exchange.MarketExchange
	if cfg.SimulationMode {
		ex = exchange.NewSimulationExchange(logger)
	} else {
		live, err := exchange.NewLiveExchange(exchange.LiveConfig{
			BaseURL:    cfg.ExchangeBaseURL,
			WSURL:      cfg.ExchangeWSURL,
			ChainID:    cfg.ExchangeChainID,
			WalletKey:  cfg.ExchangeWalletKey,
			APIKey:     cfg.ExchangeAPIKey,
			APISecret:  cfg.ExchangeAPISecret,
			Passphrase: cfg.ExchangePassphrase,
			NegRisk:    cfg.ExchangeNegRisk,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: build live exchange: %w", err)
		}
		ex = live
	}

	execCfg := executor.DefaultConfig()
	execCfg.TradeCooldown = cfg.TradeCooldown
	execCfg.GuaranteedMultiplier = cfg.GuaranteedPositionMultiplier
	execCfg.SignificantForecastChange = cfg.SignificantForecastChange
	orderExecutor := executor.New(ex, dataStore, execCfg, logger)

	discoveryClient := discovery.NewClient(discovery.WithBaseURL(cfg.DiscoveryBaseURL))

	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		bus:        bus,
		scheduler:  scheduler,
		detector:   detector,
		extractor:  gribExtractor,
		arb:        arb,
		latency:    latencyTracker,
		dataStore:  dataStore,
		runs:       runHistory,
		speed:      speedStrategy,
		confidence: confidenceStrategy,
		executor:   orderExecutor,
		exchange:   ex,
		metrics:    metrics.New(),
		discovery:  discoveryClient,
		runCtx:     context.Background(),
	}

	o.wireIngestion()
	return o, nil
}

// AddMarket registers a market for tracking, delegating to the
// underlying DataStore.
func (o *Orchestrator) AddMarket(market model.Market) {
	o.dataStore.AddMarket(market)
}

// DataStore exposes the underlying store, for HTTP status handlers and
// tests that seed price/forecast data directly.
func (o *Orchestrator) DataStore() *store.DataStore { return o.dataStore }

// Metrics exposes the Prometheus collector for mounting behind promhttp.
func (o *Orchestrator) Metrics() *metrics.SignalMetrics { return o.metrics }

// EventBus exposes the bus, for components (e.g. a future dashboard) that
// need to subscribe directly.
func (o *Orchestrator) EventBus() *eventbus.Bus { return o.bus }

// Start launches the schedule clock and the trading loop in the
// background. It returns immediately; call Stop or cancel ctx to halt.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.runCtx = runCtx
	o.running = true
	o.mu.Unlock()

	go o.scheduler.Tick(runCtx, scheduleCheckInterval)
	go o.tradingLoop(runCtx)

	return nil
}

// Stop halts the background loops started by Start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.cancel()
	o.running = false
	o.detector.StopAll()
}

// IsRunning reports whether Start has been called without a matching
// Stop.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) tradingLoop(ctx context.Context) {
	ticker := time.NewTicker(tradingLoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunOnce(ctx)
		}
	}
}

// TickResult summarizes one trading-loop pass.
type TickResult struct {
	SpeedSignals      int
	ConfidenceSignals int
	Executed          int
	Rejected          int
}

// RunOnce evaluates both strategies, executes the resulting signals, and
// records metrics for the pass. A market signaled by both strategies in
// the same tick executes only the SpeedStrategy signal: threshold
// crossings are time-sensitive in a way model-agreement signals are not,
// so speed takes priority when both fire in the same window.
func (o *Orchestrator) RunOnce(ctx context.Context) TickResult {
	now := time.Now()

	speedSignals := o.speed.Evaluate(now)
	confidenceSignals := o.confidence.Evaluate(now)

	byMarket := make(map[string]model.EntrySignal, len(speedSignals)+len(confidenceSignals))
	for _, sig := range confidenceSignals {
		byMarket[sig.MarketID] = sig
	}
	for _, sig := range speedSignals {
		byMarket[sig.MarketID] = sig
	}

	signals := make([]model.EntrySignal, 0, len(byMarket))
	for _, sig := range byMarket {
		signals = append(signals, sig)
	}

	result := TickResult{SpeedSignals: len(speedSignals), ConfidenceSignals: len(confidenceSignals)}
	if len(signals) == 0 {
		o.metrics.RecordWorkflow("ok")
		o.metrics.UpdateActiveMarkets(len(o.dataStore.GetAllMarkets()))
		return result
	}

	execResults := o.executor.ExecuteBatch(ctx, signals)
	for i, res := range execResults {
		sig := signals[i]
		strategyName := "confidence"
		if sig.Urgency == model.UrgencyHigh {
			strategyName = "speed"
		}
		o.metrics.RecordSignal(strategyName, string(sig.Side), sig.Edge, sig.Confidence)
		if res.Executed {
			result.Executed++
			o.metrics.RecordOrder(string(sig.Side), "confirmed", sig.Size, 0)
		} else {
			result.Rejected++
			if res.Error != nil {
				o.metrics.RecordReject(string(res.Error.Code))
			}
		}
	}

	o.metrics.RecordWorkflow("ok")
	o.metrics.UpdateActiveMarkets(len(o.dataStore.GetAllMarkets()))
	return result
}

// RunDiscovery fetches tradeable markets from the configured Gamma-style
// API and registers every one the parser can place into a structured
// Market. It is never called automatically (construction and Start stay
// network-free for tests); callers that want real markets instead of
// hand-seeded ones invoke it once before Start.
func (o *Orchestrator) RunDiscovery(ctx context.Context) (int, error) {
	markets, skipped, err := discovery.Discover(ctx, o.discovery)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: market discovery: %w", err)
	}
	for _, m := range markets {
		o.dataStore.AddMarket(m)
	}
	for _, s := range skipped {
		o.logger.Debug("orchestrator: skipped unparseable market",
			zap.String("condition_id", s.ConditionID), zap.String("reason", s.Reason))
	}
	o.logger.Info("orchestrator: market discovery complete",
		zap.Int("registered", len(markets)), zap.Int("skipped", len(skipped)))
	return len(markets), nil
}

func newTraceID() string {
	return uuid.NewString()
}
