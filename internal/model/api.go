package model

import "time"

// Confidence marks whether a downstream forecast update came from the
// authoritative FILE source or the lower-confidence API fallback.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceLow  Confidence = "LOW"
)

// APIObservation is one city-level reading funneled into
// API_DATA_RECEIVED by the external weather-controller fallback (spec
// §4.6's "batch forecast updates produced by an external weather
// controller").
type APIObservation struct {
	CityID         string
	Model          Model
	CycleHour      int
	RunDate        time.Time
	TempC          float64
	PrecipFlag     bool
	PrecipAmountMm float64
	Timestamp      time.Time
}

// ForecastUpdate is IngestionArbiter's FORECAST_UPDATED payload: one
// city's accepted reading, tagged with the confidence its source
// implies.
type ForecastUpdate struct {
	CityID         string
	Model          Model
	CycleHour      int
	RunDate        time.Time
	TempC          float64
	PrecipFlag     bool
	PrecipAmountMm float64
	Confidence     Confidence
	Source         Source
	Timestamp      time.Time
}
