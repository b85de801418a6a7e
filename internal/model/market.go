// Package model defines the core entities shared across the detection,
// arbitration, state, strategy, and execution layers: markets, price
// history, forecast snapshots, run records, detection windows, and
// traces.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetricType identifies the weather metric a market resolves on.
type MetricType string

const (
	MetricTempHigh      MetricType = "temp_high"
	MetricTempLow       MetricType = "temp_low"
	MetricTempThreshold MetricType = "temp_threshold"
	MetricTempRange     MetricType = "temp_range"
	MetricPrecipitation MetricType = "precipitation"
	MetricSnowfall      MetricType = "snowfall"
	MetricUnknown       MetricType = "unknown"
)

// Comparison is the relation a market's threshold is checked against.
type Comparison string

const (
	ComparisonAbove Comparison = "above"
	ComparisonBelow Comparison = "below"
	ComparisonRange Comparison = "range"
)

// Unit is the unit a market's threshold was originally quoted in.
// Temperature thresholds are normalized to Fahrenheit on ingestion, so
// Unit is display-only for them; precipitation and snowfall thresholds
// keep their quoted value, and Unit selects whether forecasts are
// compared in inches or millimeters.
type Unit string

const (
	UnitFahrenheit Unit = "F"
	UnitCelsius    Unit = "C"
	UnitInches     Unit = "inches"
	UnitMM         Unit = "mm"
)

// Market is an immutable-attribute weather-threshold contract. YesPrice
// and NoPrice are mutable last-observed prices, updated exclusively
// through DataStore.UpdatePrice.
type Market struct {
	MarketID     string
	City         string
	MetricType   MetricType
	Comparison   Comparison
	Threshold    float64
	MinThreshold float64
	MaxThreshold float64
	Unit         Unit
	TargetDate   time.Time
	YesTokenID   string
	NoTokenID    string
	Active       bool
	Closed       bool

	YesPrice decimal.Decimal
	NoPrice  decimal.Decimal
}

// resolvedPriceEpsilon is how close a price must be to 0.01/0.99 to be
// treated as an effectively resolved market, excluded from signal
// generation.
const resolvedPriceEpsilon = 0.0001

// Resolved reports whether either side's price has settled at the
// market's extremes, meaning the market should be excluded from new
// signal generation.
func (m *Market) Resolved() bool {
	lo := decimal.NewFromFloat(0.01)
	hi := decimal.NewFromFloat(0.99)
	eps := decimal.NewFromFloat(resolvedPriceEpsilon)
	near := func(p, target decimal.Decimal) bool {
		return p.Sub(target).Abs().LessThanOrEqual(eps)
	}
	return near(m.YesPrice, lo) || near(m.YesPrice, hi) ||
		near(m.NoPrice, lo) || near(m.NoPrice, hi)
}

// Tradeable reports whether the market is a candidate for signal
// generation right now.
func (m *Market) Tradeable(now time.Time) bool {
	return m.Active && !m.Closed && !m.Resolved() && !m.TargetDate.Before(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
