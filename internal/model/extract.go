package model

import "time"

// CityData is one city's parsed scalars from a GRIB buffer, per spec
// §4.3. WindSpeedMps/WindDirection/TotalPrecipMm default to zero when
// those fields aren't present in the source; TempC is mandatory — a
// city with no temperature record is omitted entirely.
type CityData struct {
	CityID         string
	Lat            float64
	Lon            float64
	TempC          float64
	TempF          float64
	WindSpeedMps   float64
	WindSpeedMph   float64
	WindDirection  float64
	TotalPrecipMm  float64
	TotalPrecipIn  float64
	PrecipRateMmHr float64
}

// ExtractMeta identifies which run a GRIB buffer belongs to.
type ExtractMeta struct {
	Model        Model
	CycleHour    int
	RunDate      time.Time
	ForecastHour int
}

// ExtractResult is GribExtractor's output for one buffer.
type ExtractResult struct {
	Model        Model
	CycleHour    int
	ForecastHour int
	ValidTime    time.Time
	CityData     []CityData
	FileSizeB    int64
	ParseTimeMs  float64
}
