package strategy

import (
	"time"

	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/probability"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
)

// SpeedConfig are SpeedStrategy's tunable thresholds, defaulted per
// spec §4.10.
type SpeedConfig struct {
	MaxPositionUSDC float64
	DeadBandF       float64
	MaxCrossingAge  time.Duration
	MinEdge         float64
}

// DefaultSpeedConfig returns spec §4.10's literal example values.
func DefaultSpeedConfig() SpeedConfig {
	return SpeedConfig{
		MaxPositionUSDC: 100,
		DeadBandF:       0.5,
		MaxCrossingAge:  120 * time.Second,
		MinEdge:         0.02,
	}
}

// rejectionStats tallies why candidate markets were skipped in one tick,
// for the per-interval diagnostics log spec §4.10 asks for.
type rejectionStats struct {
	noForecast      int
	noThreshold     int
	noPriceHistory  int
	noCrossing      int
	stale           int
	lowEdge         int
	errors          int
}

// SpeedStrategy emits an EntrySignal the instant a market's forecast
// crosses its threshold relative to the immediately preceding value. It
// never fires on a market's first forecast.
type SpeedStrategy struct {
	store  *store.DataStore
	cfg    SpeedConfig
	logger *zap.Logger
}

// NewSpeedStrategy constructs a SpeedStrategy reading from ds.
func NewSpeedStrategy(ds *store.DataStore, cfg SpeedConfig, logger *zap.Logger) *SpeedStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeedStrategy{store: ds, cfg: cfg, logger: logger}
}

// Evaluate scans every market in the store and returns the EntrySignals
// produced by threshold crossings observed since the last tick.
func (s *SpeedStrategy) Evaluate(now time.Time) []model.EntrySignal {
	var signals []model.EntrySignal
	var stats rejectionStats

	for _, state := range s.store.GetAllMarkets() {
		sig, ok := s.evaluateMarket(state, now, &stats)
		if ok {
			signals = append(signals, sig)
		}
	}

	s.logger.Debug("speed strategy tick",
		zap.Int("signals", len(signals)),
		zap.Int("no_forecast", stats.noForecast),
		zap.Int("no_threshold", stats.noThreshold),
		zap.Int("no_price_history", stats.noPriceHistory),
		zap.Int("no_crossing", stats.noCrossing),
		zap.Int("stale", stats.stale),
		zap.Int("low_edge", stats.lowEdge),
		zap.Int("errors", stats.errors),
	)
	return signals
}

func (s *SpeedStrategy) evaluateMarket(state *model.MarketState, now time.Time, stats *rejectionStats) (model.EntrySignal, bool) {
	market := state.Market
	if !market.Tradeable(now) {
		stats.noThreshold++
		return model.EntrySignal{}, false
	}

	lf := state.LastForecast
	if lf == nil || lf.PreviousValue == nil {
		stats.noForecast++
		return model.EntrySignal{}, false
	}

	changeAge := now.Sub(lf.ChangeTimestamp)
	if changeAge > s.cfg.MaxCrossingAge {
		stats.stale++
		return model.EntrySignal{}, false
	}

	prevPos := model.ComputeThresholdPosition(*lf.PreviousValue, market.Threshold, s.cfg.DeadBandF)
	curPos := model.ComputeThresholdPosition(lf.Value, market.Threshold, s.cfg.DeadBandF)
	if prevPos == curPos {
		stats.noCrossing++
		return model.EntrySignal{}, false
	}

	priceYes, ok := lastPrice(state.YesHistory)
	if !ok {
		stats.noPriceHistory++
		return model.EntrySignal{}, false
	}

	days := daysToEvent(now, market.TargetDate)
	uncertainty := uncertaintyFor(days)

	p := forecastProbability(market, lf.Value, uncertainty)
	edge := p - priceYes
	if absF(edge) < s.cfg.MinEdge {
		stats.lowEdge++
		return model.EntrySignal{}, false
	}

	side := model.SideYes
	if edge < 0 {
		side = model.SideNo
	}

	sigma := 0.0
	if uncertainty > 0 {
		sigma = absF(lf.Value-market.Threshold) / uncertainty
	}

	size := sizeSpeedSignal(s.cfg.MaxPositionUSDC, priceYes, changeAge, sigma)

	return model.EntrySignal{
		MarketID:      market.MarketID,
		Side:          side,
		Size:          size,
		Urgency:       model.UrgencyHigh,
		ForecastValue: lf.Value,
		IsGuaranteed:  sigma >= 3,
		Sigma:         sigma,
		Edge:          edge,
		Confidence:    1.0,
		Reason:        "threshold_crossing",
	}, true
}

// forecastProbability evaluates the market's comparison against a normal
// distribution centered on value with the given standard deviation.
func forecastProbability(market model.Market, value, stdDev float64) float64 {
	switch market.Comparison {
	case model.ComparisonAbove:
		return probability.ProbAbove(market.Threshold, value, stdDev)
	case model.ComparisonBelow:
		return probability.ProbBelow(market.Threshold, value, stdDev)
	case model.ComparisonRange:
		return probability.ProbBetween(market.MinThreshold, market.MaxThreshold, value, stdDev)
	default:
		return 0.5
	}
}

func lastPrice(h model.PriceHistory) (float64, bool) {
	p, ok := h.Last()
	if !ok {
		return 0, false
	}
	f, _ := p.Price.Float64()
	return f, true
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
