// Package metrics provides Prometheus metrics for the signal engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// SignalMetrics collects and exposes the engine's Prometheus metrics.
type SignalMetrics struct {
	registry *prometheus.Registry

	// Detection metrics
	DetectionsTotal *prometheus.CounterVec
	DetectionLag    *prometheus.HistogramVec

	// Forecast/ensemble metrics
	ForecastsTotal       *prometheus.CounterVec
	EnsembleSpread       *prometheus.HistogramVec
	EnsembleSigma        *prometheus.HistogramVec
	ModelsConsideredHist *prometheus.HistogramVec

	// Signal metrics
	SignalsTotal   *prometheus.CounterVec
	SignalEdge     *prometheus.HistogramVec
	SignalStrength *prometheus.HistogramVec

	// Order/execution metrics
	OrdersTotal      *prometheus.CounterVec
	OrderDuration    *prometheus.HistogramVec
	OrderSize        *prometheus.HistogramVec
	ExecutionRejects *prometheus.CounterVec

	// Position metrics
	PositionSize  *prometheus.GaugeVec
	PositionValue *prometheus.GaugeVec

	// Orchestrator metrics
	WorkflowRuns  *prometheus.CounterVec
	StageLatency  *prometheus.HistogramVec
	ActiveMarkets prometheus.Gauge
}

// New constructs a SignalMetrics bound to a fresh registry.
func New() *SignalMetrics {
	registry := prometheus.NewRegistry()

	m := &SignalMetrics{
		registry: registry,

		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_detections_total",
				Help: "Total number of model-run detections confirmed",
			},
			[]string{"model", "source"},
		),
		DetectionLag: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_detection_lag_seconds",
				Help:    "Time from expected availability to confirmed detection",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"model"},
		),

		ForecastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_forecasts_total",
				Help: "Total number of forecast snapshots ingested",
			},
			[]string{"model", "metric"},
		),
		EnsembleSpread: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_ensemble_spread",
				Help:    "Max-min model disagreement feeding the combiner",
				Buckets: prometheus.LinearBuckets(0, 0.5, 12),
			},
			[]string{"metric"},
		),
		EnsembleSigma: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_ensemble_sigma",
				Help:    "Standard deviations between ensemble mean and market threshold",
				Buckets: prometheus.LinearBuckets(0, 0.25, 16),
			},
			[]string{"metric"},
		),
		ModelsConsideredHist: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_ensemble_models_considered",
				Help:    "Number of models folded into one combiner result",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"metric"},
		),

		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_entry_signals_total",
				Help: "Total number of entry signals generated",
			},
			[]string{"strategy", "side"},
		),
		SignalEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_entry_edge",
				Help:    "Entry signal edge (probability minus price)",
				Buckets: []float64{0, 0.02, 0.05, 0.10, 0.15, 0.20, 0.30, 0.50},
			},
			[]string{"strategy"},
		),
		SignalStrength: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_entry_confidence",
				Help:    "Entry signal confidence score (0-1)",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"strategy"},
		),

		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_orders_total",
				Help: "Total number of orders submitted",
			},
			[]string{"side", "status"},
		),
		OrderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_order_duration_seconds",
				Help:    "Time from order submission to confirmed fill",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"side"},
		),
		OrderSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_order_size_usd",
				Help:    "Order notional size in USD",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"side"},
		),
		ExecutionRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_execution_rejects_total",
				Help: "Total number of execution attempts rejected by a guard",
			},
			[]string{"reason"},
		),

		PositionSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_position_size",
				Help: "Current position size (shares)",
			},
			[]string{"token_id", "market"},
		),
		PositionValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_position_value_usd",
				Help: "Current position value in USD",
			},
			[]string{"token_id", "market"},
		),

		WorkflowRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_workflow_runs_total",
				Help: "Total number of orchestrator tick runs",
			},
			[]string{"status"},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_stage_latency_seconds",
				Help:    "Individual orchestrator stage latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"stage"},
		),
		ActiveMarkets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signal_active_markets",
				Help: "Number of markets currently tracked",
			},
		),
	}

	m.registerAll()
	return m
}

func (m *SignalMetrics) registerAll() {
	m.registry.MustRegister(
		m.DetectionsTotal,
		m.DetectionLag,
		m.ForecastsTotal,
		m.EnsembleSpread,
		m.EnsembleSigma,
		m.ModelsConsideredHist,
		m.SignalsTotal,
		m.SignalEdge,
		m.SignalStrength,
		m.OrdersTotal,
		m.OrderDuration,
		m.OrderSize,
		m.ExecutionRejects,
		m.PositionSize,
		m.PositionValue,
		m.WorkflowRuns,
		m.StageLatency,
		m.ActiveMarkets,
	)
}

// Registry returns the Prometheus registry backing this collector, for
// mounting behind promhttp.HandlerFor.
func (m *SignalMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordDetection records a confirmed model-run detection.
func (m *SignalMetrics) RecordDetection(model, source string, lagSeconds float64) {
	m.DetectionsTotal.WithLabelValues(model, source).Inc()
	if lagSeconds >= 0 {
		m.DetectionLag.WithLabelValues(model).Observe(lagSeconds)
	}
}

// RecordForecast records one ingested forecast snapshot.
func (m *SignalMetrics) RecordForecast(modelName, metric string) {
	m.ForecastsTotal.WithLabelValues(modelName, metric).Inc()
}

// RecordEnsemble records a combiner result's spread/sigma/participant count.
func (m *SignalMetrics) RecordEnsemble(metric string, spread, sigma float64, modelsConsidered int) {
	m.EnsembleSpread.WithLabelValues(metric).Observe(spread)
	m.EnsembleSigma.WithLabelValues(metric).Observe(sigma)
	m.ModelsConsideredHist.WithLabelValues(metric).Observe(float64(modelsConsidered))
}

// RecordSignal records a generated entry signal.
func (m *SignalMetrics) RecordSignal(strategy, side string, edge, confidence float64) {
	m.SignalsTotal.WithLabelValues(strategy, side).Inc()
	m.SignalEdge.WithLabelValues(strategy).Observe(edge)
	m.SignalStrength.WithLabelValues(strategy).Observe(confidence)
}

// RecordOrder records an order submission outcome.
func (m *SignalMetrics) RecordOrder(side, status string, sizeUSD, durationSec float64) {
	m.OrdersTotal.WithLabelValues(side, status).Inc()
	if sizeUSD > 0 {
		m.OrderSize.WithLabelValues(side).Observe(sizeUSD)
	}
	if durationSec > 0 {
		m.OrderDuration.WithLabelValues(side).Observe(durationSec)
	}
}

// RecordReject records an execution guard rejection.
func (m *SignalMetrics) RecordReject(reason string) {
	m.ExecutionRejects.WithLabelValues(reason).Inc()
}

// UpdatePosition updates gauges for one token's current holding.
func (m *SignalMetrics) UpdatePosition(tokenID, market string, size, valueUSD float64) {
	m.PositionSize.WithLabelValues(tokenID, market).Set(size)
	m.PositionValue.WithLabelValues(tokenID, market).Set(valueUSD)
}

// RecordWorkflow records one orchestrator tick.
func (m *SignalMetrics) RecordWorkflow(status string) {
	m.WorkflowRuns.WithLabelValues(status).Inc()
}

// RecordStage records one orchestrator stage's duration.
func (m *SignalMetrics) RecordStage(stage string, durationSec float64) {
	m.StageLatency.WithLabelValues(stage).Observe(durationSec)
}

// UpdateActiveMarkets sets the currently-tracked market count.
func (m *SignalMetrics) UpdateActiveMarkets(count int) {
	m.ActiveMarkets.Set(float64(count))
}

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

var (
	defaultMetrics *SignalMetrics
	once           sync.Once
)

// Default returns the process-wide default metrics instance.
func Default() *SignalMetrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}
