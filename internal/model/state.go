package model

// MarketState bundles a Market with its owned price and forecast
// histories. Created on first DataStore.AddMarket call; lives for the
// process lifetime (never deleted, per §4.7).
type MarketState struct {
	Market          Market
	YesHistory      PriceHistory
	NoHistory       PriceHistory
	ForecastHistory []ForecastSnapshot
	LastForecast    *ForecastSnapshot
}
