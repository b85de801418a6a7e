// Package bayesian implements the ensemble combination of multiple model
// forecasts for a single city/metric into one probability of a market's
// threshold condition, correcting for each model's known bias and
// weighting by lead-time decay and historical skill.
package bayesian

import (
	"math"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/probability"
)

// spreadLambda weights the inter-model spread term added to the combined
// variance, per spec §4.9's λ≈0.5.
const spreadLambda = 0.5

// minCombinedWeight floors a model's combined weight so a single
// low-skill, far-horizon model never drops to zero influence.
const minCombinedWeight = 0.1

// certaintySigmaThreshold is how many sigma the (single) value must clear
// the threshold by before the combiner treats the outcome as guaranteed.
const certaintySigmaThreshold = 3.0

// Input is one model's raw forecast value for a city/metric/run.
type Input struct {
	Model        model.Model
	Metric       model.MetricType
	Value        float64
	HorizonHours float64
}

// Result is the combined ensemble estimate and the probability of the
// market's threshold condition given that estimate.
type Result struct {
	Mean            float64
	StdDev          float64
	Probability     float64
	IsGuaranteed    bool
	Sigma           float64
	ModelsConsidered int
}

// Combiner produces ensemble Result values from per-model Inputs.
type Combiner struct{}

// New constructs a Combiner. It carries no state; profiles are static.
func New() *Combiner {
	return &Combiner{}
}

// correctedValue applies the model's bias correction: additive for
// temperature, multiplicative (divide out 1+bias) for precipitation.
func correctedValue(in Input, p Profile, family VariableFamily) float64 {
	if family == VariablePrecipitation {
		if 1+p.Bias == 0 {
			return in.Value
		}
		return in.Value / (1 + p.Bias)
	}
	return in.Value - p.Bias
}

func horizonWeight(p Profile, horizonHours float64) float64 {
	d := horizonHours - p.OptimalHorizon
	return math.Exp(-p.DecayRate * d * d / p.OptimalHorizon)
}

func baseVariance(p Profile, horizonHours float64) float64 {
	days := horizonHours / 24.0
	v := p.BaseVarianceV0 + p.VarianceGrowth*days
	if v <= 0 {
		v = 0.01
	}
	return v
}

// Combine fuses the given per-model inputs for a single city/metric into
// one weighted mean/variance estimate, then evaluates the market's
// comparison condition against it.
//
// When exactly one input is supplied and its corrected value clears the
// threshold by at least certaintySigmaThreshold standard deviations, the
// outcome is reported as guaranteed with P pinned to 0 or 1.
func (c *Combiner) Combine(inputs []Input, comparison model.Comparison, threshold, minThreshold, maxThreshold float64) Result {
	if len(inputs) == 0 {
		return Result{Probability: 0.5}
	}

	family := variableFamilyFor(inputs[0].Metric)

	type weighted struct {
		value  float64
		weight float64
	}
	ws := make([]weighted, 0, len(inputs))
	var sumW, sumWV float64

	for _, in := range inputs {
		bucket := horizonBucketFor(in.HorizonHours)
		p := lookupProfile(in.Model, family, bucket)
		v := correctedValue(in, p, family)
		hw := horizonWeight(p, in.HorizonHours)
		wm := math.Sqrt(hw * p.SkillWeight)
		if wm < minCombinedWeight {
			wm = minCombinedWeight
		}
		variance := baseVariance(p, in.HorizonHours)
		Wm := wm / variance

		ws = append(ws, weighted{value: v, weight: Wm})
		sumW += Wm
		sumWV += Wm * v
	}

	if sumW == 0 {
		sumW = minCombinedWeight * float64(len(ws))
	}
	mean := sumWV / sumW

	var spreadSq float64
	if len(ws) > 1 {
		var maxV, minV float64
		maxV, minV = ws[0].value, ws[0].value
		for _, w := range ws[1:] {
			if w.value > maxV {
				maxV = w.value
			}
			if w.value < minV {
				minV = w.value
			}
		}
		spread := maxV - minV
		spreadSq = spread * spread
	}

	combinedVariance := 1/sumW + spreadLambda*spreadSq
	if combinedVariance <= 0 {
		combinedVariance = 0.01
	}
	stdDev := math.Sqrt(combinedVariance)

	sigma := 0.0
	if stdDev > 0 {
		sigma = math.Abs(mean-threshold) / stdDev
	}

	if len(inputs) == 1 && sigma >= certaintySigmaThreshold {
		p := 0.0
		if isSatisfied(mean, comparison, threshold, minThreshold, maxThreshold) {
			p = 1.0
		}
		return Result{
			Mean: mean, StdDev: stdDev, Probability: p,
			IsGuaranteed: true, Sigma: sigma, ModelsConsidered: len(inputs),
		}
	}

	var p float64
	switch comparison {
	case model.ComparisonAbove:
		p = probability.ProbAbove(threshold, mean, stdDev)
	case model.ComparisonBelow:
		p = probability.ProbBelow(threshold, mean, stdDev)
	case model.ComparisonRange:
		p = probability.ProbBetween(minThreshold, maxThreshold, mean, stdDev)
	default:
		p = 0.5
	}

	return Result{
		Mean: mean, StdDev: stdDev, Probability: probability.Clamp01(p),
		IsGuaranteed: false, Sigma: sigma, ModelsConsidered: len(inputs),
	}
}

func isSatisfied(value float64, comparison model.Comparison, threshold, minThreshold, maxThreshold float64) bool {
	switch comparison {
	case model.ComparisonAbove:
		return value > threshold
	case model.ComparisonBelow:
		return value < threshold
	case model.ComparisonRange:
		return value >= minThreshold && value <= maxThreshold
	default:
		return false
	}
}
