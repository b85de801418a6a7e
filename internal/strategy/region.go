package strategy

import "github.com/weatheredge/nwp-signal-engine/internal/model"

// Region groups cities by which model hierarchy ConfidenceStrategy
// applies, per spec §4.11.
type Region string

const (
	RegionUS     Region = "us"
	RegionEurope Region = "europe"
	RegionGlobal Region = "global"
)

// Hierarchy is the (primary, secondary, regime) triple for a region.
// Secondary and Regime may be empty, meaning no such model participates.
type Hierarchy struct {
	Primary   model.Model
	Secondary model.Model
	Regime    model.Model
}

var hierarchies = map[Region]Hierarchy{
	RegionUS:     {Primary: model.ModelHRRR, Secondary: model.ModelRAP, Regime: model.ModelGFS},
	RegionEurope: {Primary: model.ModelECMWF, Secondary: model.ModelGFS},
	RegionGlobal: {Primary: model.ModelGFS, Secondary: model.ModelGFS},
}

// usCities lists the cities whose region hierarchy is the US triple.
// Cities outside this set and outside europeCities fall back to
// RegionGlobal.
var usCities = map[string]bool{
	"chicago":  true,
	"seattle":  true,
	"new_york": true,
	"miami":    true,
}

var europeCities = map[string]bool{
	"london": true,
}

// regionForCity classifies a city into its ConfidenceStrategy model
// hierarchy region.
func regionForCity(cityID string) Region {
	if usCities[cityID] {
		return RegionUS
	}
	if europeCities[cityID] {
		return RegionEurope
	}
	return RegionGlobal
}

// HierarchyForCity resolves the (primary, secondary, regime) triple for
// a city.
func HierarchyForCity(cityID string) Hierarchy {
	return hierarchies[regionForCity(cityID)]
}
