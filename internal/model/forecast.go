package model

import "time"

// Source is the provenance of a forecast value: the authoritative binary
// file path, or the lower-confidence API fallback.
type Source string

const (
	SourceFile Source = "FILE"
	SourceAPI  Source = "API"
)

// ThresholdPosition discretizes a forecast value's placement relative to
// a market's threshold, with a dead-band treated as neither side.
type ThresholdPosition string

const (
	PositionAbove ThresholdPosition = "above"
	PositionBelow ThresholdPosition = "below"
	PositionAt    ThresholdPosition = "at"
)

// ForecastRetention is the maximum age a ForecastSnapshot may have before
// it is pruned from ForecastHistory.
const ForecastRetention = 24 * time.Hour

// TemperatureChangeEpsilon is the minimum absolute change in a
// temperature-family forecast value (in degrees F) for ValueChanged to be
// considered true.
const TemperatureChangeEpsilon = 0.5

// ForecastSnapshot is one observed forecast value for a market, carrying
// the delta against the immediately preceding snapshot.
type ForecastSnapshot struct {
	MarketID          string
	Value             float64
	Timestamp         time.Time
	Source            Source
	PreviousValue     *float64
	ValueChanged      bool
	ChangeTimestamp   time.Time
	ThresholdPosition ThresholdPosition
}

// ComputeThresholdPosition discretizes value relative to threshold with a
// symmetric dead-band of deadBand degrees.
func ComputeThresholdPosition(value, threshold, deadBand float64) ThresholdPosition {
	diff := value - threshold
	if diff > deadBand {
		return PositionAbove
	}
	if diff < -deadBand {
		return PositionBelow
	}
	return PositionAt
}

// ValueChangedBy reports whether |current - previous| meets or exceeds eps.
func ValueChangedBy(current, previous, eps float64) bool {
	d := current - previous
	if d < 0 {
		d = -d
	}
	return d >= eps
}
