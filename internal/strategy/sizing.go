// Package strategy implements SpeedStrategy and ConfidenceStrategy, the
// two signal generators that turn combined forecasts and price state into
// EntrySignal values for OrderExecutor.
package strategy

import (
	"math"
	"time"
)

// baseSizeMultiplier is the flat multiplier applied to maxPosition before
// the liquidity/urgency/sigma multipliers, per spec §4.10.
const baseSizeMultiplier = 1.5

// liquidityMult shrinks size as a market's YES price approaches the
// illiquid extremes, where book depth is thinnest.
func liquidityMult(priceYes float64) float64 {
	switch {
	case priceYes < 0.05 || priceYes > 0.95:
		return 0.3
	case priceYes < 0.10 || priceYes > 0.90:
		return 0.6
	default:
		return 1.0
	}
}

// urgencyMult decays as a crossing ages, since a stale crossing is less
// likely to still reflect current market conditions.
func urgencyMult(changeAge time.Duration) float64 {
	ageMs := float64(changeAge / time.Millisecond)
	switch {
	case ageMs <= 10_000:
		return 1.0
	case ageMs <= 60_000:
		return 0.7
	default:
		return 0.4
	}
}

// sigmaMult scales size up with the confidence implied by the signal's
// distance from the threshold, expressed in standard deviations.
func sigmaMult(sigma float64) float64 {
	switch {
	case sigma >= 3:
		return 1.5
	case sigma >= 2:
		return 1.2
	case sigma >= 1:
		return 1.0
	default:
		return 0.6
	}
}

// sizeSpeedSignal implements §4.10's sizing formula.
func sizeSpeedSignal(maxPosition, priceYes float64, changeAge time.Duration, sigma float64) float64 {
	return maxPosition * baseSizeMultiplier * liquidityMult(priceYes) * urgencyMult(changeAge) * sigmaMult(sigma)
}

// sigmaBucket classifies sigma into the confidence tiers §4.11 uses to
// choose a Kelly fraction.
type sigmaBucket string

const (
	bucketGuaranteed sigmaBucket = "guaranteed"
	bucketHigh       sigmaBucket = "high"
	bucketMedium     sigmaBucket = "medium"
	bucketLow        sigmaBucket = "low"
)

func classifySigma(sigma float64) sigmaBucket {
	switch {
	case sigma >= 3:
		return bucketGuaranteed
	case sigma >= 2:
		return bucketHigh
	case sigma >= 1:
		return bucketMedium
	default:
		return bucketLow
	}
}

// kellyFractionBySigma are the fixed Kelly fractions ConfidenceStrategy
// applies per sigma bucket. They are not read from config.Config's
// KellyFraction* fields, whose defaults differ.
var kellyFractionBySigma = map[sigmaBucket]float64{
	bucketGuaranteed: 0.5,
	bucketHigh:       0.35,
	bucketMedium:     0.2,
	bucketLow:        0.1,
}

// sizeConfidenceSignal applies the sigma-bucketed Kelly fraction and the
// same liquidity/sigma multipliers SpeedStrategy uses.
func sizeConfidenceSignal(maxPosition, priceYes, confidence, sigma float64) float64 {
	kelly := kellyFractionBySigma[classifySigma(sigma)] * confidence
	return maxPosition * kelly * liquidityMult(priceYes) * sigmaMult(sigma)
}

func daysToEvent(now, target time.Time) float64 {
	d := target.Sub(now).Hours() / 24.0
	if d < 0 {
		return 0
	}
	return d
}

func uncertaintyFor(daysToEvent float64) float64 {
	return 1.5 + 0.8*daysToEvent
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
