package grib

// City is one market-backing location GribExtractor resolves scalars
// for, identified by its nearest GRIB grid point.
type City struct {
	ID  string
	Lat float64
	// Lon is expressed in -180..180; callers needing 0..360 (as GFS/RAP
	// native grids do) normalize via normalizeLon.
	Lon float64
}

// Cities is the fixed set of locations markets reference. Extend this
// list as new city-backed markets are onboarded.
var Cities = []City{
	{ID: "london", Lat: 51.5074, Lon: -0.1278},
	{ID: "chicago", Lat: 41.8781, Lon: -87.6298},
	{ID: "seattle", Lat: 47.6062, Lon: -122.3321},
	{ID: "new_york", Lat: 40.7128, Lon: -74.0060},
	{ID: "miami", Lat: 25.7617, Lon: -80.1918},
}
