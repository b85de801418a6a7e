package bayesian

import "github.com/weatheredge/nwp-signal-engine/internal/model"

// VariableFamily groups market metric types by which bias-correction and
// variance-growth rule applies.
type VariableFamily string

const (
	VariableTemperature    VariableFamily = "temperature"
	VariablePrecipitation  VariableFamily = "precipitation"
)

func variableFamilyFor(metric model.MetricType) VariableFamily {
	switch metric {
	case model.MetricPrecipitation, model.MetricSnowfall:
		return VariablePrecipitation
	default:
		return VariableTemperature
	}
}

// HorizonBucket discretizes lead time per spec §4.9: short <= 24h,
// medium 24-72h, long > 72h.
type HorizonBucket string

const (
	HorizonShort  HorizonBucket = "short"
	HorizonMedium HorizonBucket = "medium"
	HorizonLong   HorizonBucket = "long"
)

func horizonBucketFor(hours float64) HorizonBucket {
	switch {
	case hours <= 24:
		return HorizonShort
	case hours <= 72:
		return HorizonMedium
	default:
		return HorizonLong
	}
}

// Profile is one (model, variable family, horizon bucket)'s static bias
// correction and weighting parameters.
type Profile struct {
	// Bias is subtracted from the raw value for temperature, or used as the
	// multiplicative correction divisor (1+Bias) for precipitation.
	Bias float64
	// DecayRate and OptimalHorizon parameterize horizonWeight =
	// exp(-decayRate * d^2 / optimalHorizon) with d = |h - optimalHorizon|.
	DecayRate      float64
	OptimalHorizon float64
	// SkillWeight in [0,1] is the model's per-variable forecast skill.
	SkillWeight float64
	// BaseVarianceV0/Growth parameterize baseVariance(h) = v0 + growth*d
	// (d measured in days of lead time).
	BaseVarianceV0 float64
	VarianceGrowth float64
}

func defaultProfile() Profile {
	return Profile{
		Bias: 0, DecayRate: 0.01, OptimalHorizon: 24,
		SkillWeight: 0.5, BaseVarianceV0: 2.0, VarianceGrowth: 0.4,
	}
}

// profiles holds the known, static-but-configurable per-model profiles
// named in spec §4.9: HRRR's small warm short-range bias, GFS's larger
// cold bias, ECMWF's lowest variance, RAP's smoothing bias.
var profiles = map[model.Model]map[VariableFamily]map[HorizonBucket]Profile{
	model.ModelHRRR: {
		VariableTemperature: {
			HorizonShort:  {Bias: 0.4, DecayRate: 0.01, OptimalHorizon: 6, SkillWeight: 0.85, BaseVarianceV0: 1.5, VarianceGrowth: 0.5},
			HorizonMedium: {Bias: 0.2, DecayRate: 0.02, OptimalHorizon: 6, SkillWeight: 0.55, BaseVarianceV0: 2.2, VarianceGrowth: 0.6},
			HorizonLong:   {Bias: 0.1, DecayRate: 0.03, OptimalHorizon: 6, SkillWeight: 0.25, BaseVarianceV0: 3.0, VarianceGrowth: 0.7},
		},
		VariablePrecipitation: {
			HorizonShort:  {Bias: 0.05, DecayRate: 0.01, OptimalHorizon: 6, SkillWeight: 0.75, BaseVarianceV0: 2.0, VarianceGrowth: 0.5},
			HorizonMedium: {Bias: 0.08, DecayRate: 0.02, OptimalHorizon: 6, SkillWeight: 0.45, BaseVarianceV0: 2.8, VarianceGrowth: 0.6},
			HorizonLong:   {Bias: 0.10, DecayRate: 0.03, OptimalHorizon: 6, SkillWeight: 0.20, BaseVarianceV0: 3.5, VarianceGrowth: 0.7},
		},
	},
	model.ModelRAP: {
		VariableTemperature: {
			HorizonShort:  {Bias: 0.3, DecayRate: 0.01, OptimalHorizon: 12, SkillWeight: 0.75, BaseVarianceV0: 1.7, VarianceGrowth: 0.5},
			HorizonMedium: {Bias: 0.15, DecayRate: 0.02, OptimalHorizon: 12, SkillWeight: 0.50, BaseVarianceV0: 2.4, VarianceGrowth: 0.6},
			HorizonLong:   {Bias: 0.05, DecayRate: 0.03, OptimalHorizon: 12, SkillWeight: 0.20, BaseVarianceV0: 3.2, VarianceGrowth: 0.7},
		},
		VariablePrecipitation: {
			HorizonShort:  {Bias: 0.03, DecayRate: 0.01, OptimalHorizon: 12, SkillWeight: 0.65, BaseVarianceV0: 2.1, VarianceGrowth: 0.5},
			HorizonMedium: {Bias: 0.06, DecayRate: 0.02, OptimalHorizon: 12, SkillWeight: 0.40, BaseVarianceV0: 2.9, VarianceGrowth: 0.6},
			HorizonLong:   {Bias: 0.09, DecayRate: 0.03, OptimalHorizon: 12, SkillWeight: 0.15, BaseVarianceV0: 3.6, VarianceGrowth: 0.7},
		},
	},
	model.ModelGFS: {
		VariableTemperature: {
			HorizonShort:  {Bias: -0.3, DecayRate: 0.008, OptimalHorizon: 48, SkillWeight: 0.60, BaseVarianceV0: 1.8, VarianceGrowth: 0.45},
			HorizonMedium: {Bias: -0.6, DecayRate: 0.01, OptimalHorizon: 48, SkillWeight: 0.65, BaseVarianceV0: 2.3, VarianceGrowth: 0.5},
			HorizonLong:   {Bias: -0.9, DecayRate: 0.015, OptimalHorizon: 48, SkillWeight: 0.55, BaseVarianceV0: 2.9, VarianceGrowth: 0.6},
		},
		VariablePrecipitation: {
			HorizonShort:  {Bias: 0.04, DecayRate: 0.008, OptimalHorizon: 48, SkillWeight: 0.55, BaseVarianceV0: 2.2, VarianceGrowth: 0.45},
			HorizonMedium: {Bias: 0.07, DecayRate: 0.01, OptimalHorizon: 48, SkillWeight: 0.50, BaseVarianceV0: 2.7, VarianceGrowth: 0.5},
			HorizonLong:   {Bias: 0.10, DecayRate: 0.015, OptimalHorizon: 48, SkillWeight: 0.40, BaseVarianceV0: 3.3, VarianceGrowth: 0.6},
		},
	},
	model.ModelECMWF: {
		VariableTemperature: {
			HorizonShort:  {Bias: 0.05, DecayRate: 0.006, OptimalHorizon: 72, SkillWeight: 0.80, BaseVarianceV0: 1.3, VarianceGrowth: 0.35},
			HorizonMedium: {Bias: 0.08, DecayRate: 0.008, OptimalHorizon: 72, SkillWeight: 0.80, BaseVarianceV0: 1.7, VarianceGrowth: 0.4},
			HorizonLong:   {Bias: 0.10, DecayRate: 0.01, OptimalHorizon: 72, SkillWeight: 0.70, BaseVarianceV0: 2.2, VarianceGrowth: 0.5},
		},
		VariablePrecipitation: {
			HorizonShort:  {Bias: 0.02, DecayRate: 0.006, OptimalHorizon: 72, SkillWeight: 0.70, BaseVarianceV0: 1.8, VarianceGrowth: 0.35},
			HorizonMedium: {Bias: 0.04, DecayRate: 0.008, OptimalHorizon: 72, SkillWeight: 0.65, BaseVarianceV0: 2.3, VarianceGrowth: 0.4},
			HorizonLong:   {Bias: 0.06, DecayRate: 0.01, OptimalHorizon: 72, SkillWeight: 0.55, BaseVarianceV0: 2.8, VarianceGrowth: 0.5},
		},
	},
}

// lookupProfile returns the configured profile for (mdl, family,
// bucket), falling back to a generic default when the model has no
// authored profile for that variable family.
func lookupProfile(mdl model.Model, family VariableFamily, bucket HorizonBucket) Profile {
	byFamily, ok := profiles[mdl]
	if !ok {
		return defaultProfile()
	}
	byBucket, ok := byFamily[family]
	if !ok {
		return defaultProfile()
	}
	p, ok := byBucket[bucket]
	if !ok {
		return defaultProfile()
	}
	return p
}
