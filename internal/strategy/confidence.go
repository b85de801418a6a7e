package strategy

import (
	"time"

	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/bayesian"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
)

// stabilityThresholdC is the max pairwise delta (degrees C) across the
// last K runs of a city's primary model for its forecast to be
// considered stable, per spec §4.11.
const stabilityThresholdC = 0.3

// runsConsidered is K, the trailing run-history window checked for
// stability and cross-model agreement.
const runsConsidered = 5

// confidenceGate is the minimum composed confidence score required to
// emit a signal.
const confidenceGate = 0.50

// ConfidenceConfig are ConfidenceStrategy's tunable parameters.
type ConfidenceConfig struct {
	MaxPositionUSDC float64
}

// DefaultConfidenceConfig returns spec-reasonable defaults.
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{MaxPositionUSDC: 100}
}

// ConfidenceStrategy emits a signal when a region's primary model is
// stable across its recent runs and corroborated, to some degree, by
// its secondary/regime models. Only the primary model may initiate a
// trade; the others may only raise or lower confidence.
type ConfidenceStrategy struct {
	dataStore *store.DataStore
	runs      *store.RunHistoryStore
	combiner  *bayesian.Combiner
	cfg       ConfidenceConfig
	logger    *zap.Logger
}

// NewConfidenceStrategy constructs a ConfidenceStrategy.
func NewConfidenceStrategy(ds *store.DataStore, runs *store.RunHistoryStore, cfg ConfidenceConfig, logger *zap.Logger) *ConfidenceStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfidenceStrategy{dataStore: ds, runs: runs, combiner: bayesian.New(), cfg: cfg, logger: logger}
}

// Evaluate scans every market and returns EntrySignals for cities whose
// primary model is stable, agreed-upon, and confident enough.
func (s *ConfidenceStrategy) Evaluate(now time.Time) []model.EntrySignal {
	var signals []model.EntrySignal
	for _, state := range s.dataStore.GetAllMarkets() {
		if sig, ok := s.evaluateMarket(state, now); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (s *ConfidenceStrategy) evaluateMarket(state *model.MarketState, now time.Time) (model.EntrySignal, bool) {
	market := state.Market
	if !market.Tradeable(now) {
		return model.EntrySignal{}, false
	}

	hier := HierarchyForCity(market.City)
	if s.runs.IsFirstRun(market.City, hier.Primary) {
		return model.EntrySignal{}, false
	}

	primaryRuns := s.runs.GetLastKRuns(market.City, hier.Primary, runsConsidered)
	if len(primaryRuns) < 2 {
		return model.EntrySignal{}, false
	}
	latest := primaryRuns[0]

	isPrecip := market.MetricType == model.MetricPrecipitation || market.MetricType == model.MetricSnowfall
	stability := runStability(primaryRuns, isPrecip)

	agreement, participants := crossModelAgreement(s.runs, market.City, hier, latest, isPrecip)

	days := daysToEvent(now, market.TargetDate)
	horizonHours := market.TargetDate.Sub(latest.RunDate).Hours()
	if horizonHours < 0 {
		horizonHours = 0
	}

	inputs := make([]bayesian.Input, 0, len(participants)+1)
	inputs = append(inputs, bayesian.Input{Model: hier.Primary, Metric: market.MetricType, Value: valueFor(latest, isPrecip), HorizonHours: horizonHours})
	inputs = append(inputs, participants...)

	result := s.combiner.Combine(inputs, market.Comparison, market.Threshold, market.MinThreshold, market.MaxThreshold)

	priceYes, ok := lastPrice(state.YesHistory)
	if !ok {
		return model.EntrySignal{}, false
	}
	edge := result.Probability - priceYes

	sigmaContribution := clamp(result.Sigma*0.10, 0, 0.30)
	horizonPenalty := 0.03 * clamp(days-3, 0, 1e9)
	sourceBonus := 0.0
	if latest.Source == model.SourceFile {
		sourceBonus = 0.10
	}

	confidence := 0.30*stability + 0.30*agreement + sigmaContribution - horizonPenalty + sourceBonus
	confidence = clamp(confidence, 0, 1)

	if confidence < confidenceGate {
		return model.EntrySignal{}, false
	}

	side := model.SideYes
	if edge < 0 {
		side = model.SideNo
	}

	size := sizeConfidenceSignal(s.cfg.MaxPositionUSDC, priceYes, confidence, result.Sigma)

	return model.EntrySignal{
		MarketID:      market.MarketID,
		Side:          side,
		Size:          size,
		Urgency:       model.UrgencyMedium,
		ForecastValue: valueFor(latest, isPrecip),
		IsGuaranteed:  result.IsGuaranteed,
		Sigma:         result.Sigma,
		Edge:          edge,
		Confidence:    confidence,
		Reason:        "model_agreement",
	}, true
}

func valueFor(r model.RunRecord, isPrecip bool) float64 {
	if isPrecip {
		return r.PrecipAmountMm
	}
	return r.MaxTempC
}

// runStability is monotone-decreasing in the max pairwise delta across
// the given runs (newest-first); precip markets instead require a
// consistent precip flag across the window.
func runStability(runs []model.RunRecord, isPrecip bool) float64 {
	if isPrecip {
		first := runs[0].PrecipFlag
		for _, r := range runs[1:] {
			if r.PrecipFlag != first {
				return 0
			}
		}
		return 1
	}

	maxDelta := 0.0
	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			d := absF(runs[i].MaxTempC - runs[j].MaxTempC)
			if d > maxDelta {
				maxDelta = d
			}
		}
	}
	return clamp(1-maxDelta/stabilityThresholdC, 0, 1)
}

// crossModelAgreement compares the primary model's latest value against
// its available secondary/regime models' latest values, returning 1 for
// perfect agreement and the bayesian.Input values of the participating
// corroborating models (for inclusion in the ensemble combine).
func crossModelAgreement(runs *store.RunHistoryStore, cityID string, hier Hierarchy, primaryLatest model.RunRecord, isPrecip bool) (float64, []bayesian.Input) {
	var others []model.RunRecord
	var inputs []bayesian.Input

	consider := func(mdl model.Model) {
		if mdl == "" || mdl == hier.Primary {
			return
		}
		latestRuns := runs.GetLastKRuns(cityID, mdl, 1)
		if len(latestRuns) == 0 {
			return
		}
		r := latestRuns[0]
		others = append(others, r)
		inputs = append(inputs, bayesian.Input{Model: mdl, HorizonHours: 24})
	}
	consider(hier.Secondary)
	consider(hier.Regime)

	if len(others) == 0 {
		return 0.5, nil
	}

	sumDiff := 0.0
	for i, r := range others {
		d := absF(valueFor(primaryLatest, isPrecip) - valueFor(r, isPrecip))
		sumDiff += d
		inputs[i].Value = valueFor(r, isPrecip)
		if isPrecip {
			inputs[i].Metric = model.MetricPrecipitation
		} else {
			inputs[i].Metric = model.MetricTempHigh
		}
	}
	avgDiff := sumDiff / float64(len(others))
	agreement := 1 - clamp(avgDiff/5.0, 0, 1)
	return agreement, inputs
}
