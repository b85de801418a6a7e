package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

func newTestMarket() model.Market {
	return model.Market{
		MarketID:   "m1",
		City:       "london",
		YesTokenID: "yes1",
		NoTokenID:  "no1",
		Threshold:  60.8,
	}
}

func TestAddMarketIsIdempotent(t *testing.T) {
	s := New()
	s.AddMarket(newTestMarket())
	s.AddMarket(model.Market{MarketID: "m1", City: "different-on-purpose"})

	state, ok := s.GetMarketState("m1")
	if !ok {
		t.Fatal("expected market m1 to exist")
	}
	if state.Market.City != "london" {
		t.Fatalf("second AddMarket call should not overwrite the first, got city=%q", state.Market.City)
	}
}

func TestUpdatePriceAppendsAndNotifies(t *testing.T) {
	s := New()
	s.AddMarket(newTestMarket())

	var notified model.PriceHistory
	s.SubscribePriceUpdates(func(marketID string, h model.PriceHistory) { notified = h })

	now := time.Now()
	ok := s.UpdatePrice("yes1", decimal.NewFromFloat(0.31), now)
	if !ok {
		t.Fatal("UpdatePrice returned false for a known token")
	}

	state, _ := s.GetMarketState("m1")
	if len(state.YesHistory.Points) != 1 {
		t.Fatalf("len(YesHistory.Points) = %d, want 1", len(state.YesHistory.Points))
	}
	if !state.Market.YesPrice.Equal(decimal.NewFromFloat(0.31)) {
		t.Fatalf("YesPrice = %v, want 0.31", state.Market.YesPrice)
	}
	if len(notified.Points) != 1 {
		t.Fatal("expected subscriber to receive the updated history")
	}
}

func TestUpdatePriceUnknownTokenReturnsFalse(t *testing.T) {
	s := New()
	if s.UpdatePrice("unknown", decimal.Zero, time.Now()) {
		t.Fatal("expected UpdatePrice to return false for an unknown token")
	}
}

func TestUpdateForecastComputesPreviousAndChanged(t *testing.T) {
	s := New()
	s.AddMarket(newTestMarket())

	t0 := time.Now()
	s.UpdateForecast("m1", 57.2, t0, model.SourceFile, 60.8, 0.5)
	snap2, ok := s.UpdateForecast("m1", 64.4, t0.Add(30*time.Second), model.SourceFile, 60.8, 0.5)
	if !ok {
		t.Fatal("UpdateForecast returned false for a known market")
	}

	if snap2.PreviousValue == nil || *snap2.PreviousValue != 57.2 {
		t.Fatalf("PreviousValue = %v, want 57.2", snap2.PreviousValue)
	}
	if !snap2.ValueChanged {
		t.Fatal("expected ValueChanged=true for a 7.2-degree jump")
	}
	if snap2.ThresholdPosition != model.PositionAbove {
		t.Fatalf("ThresholdPosition = %v, want above", snap2.ThresholdPosition)
	}
}

func TestGetStatsCountsAcrossMarkets(t *testing.T) {
	s := New()
	s.AddMarket(newTestMarket())
	s.UpdatePrice("yes1", decimal.NewFromFloat(0.5), time.Now())
	s.UpdateForecast("m1", 55.0, time.Now(), model.SourceFile, 60.8, 0.5)

	stats := s.GetStats()
	if stats.MarketCount != 1 {
		t.Fatalf("MarketCount = %d, want 1", stats.MarketCount)
	}
	if stats.TotalPricePoints != 1 {
		t.Fatalf("TotalPricePoints = %d, want 1", stats.TotalPricePoints)
	}
	if stats.TotalForecastSnapshots != 1 {
		t.Fatalf("TotalForecastSnapshots = %d, want 1", stats.TotalForecastSnapshots)
	}
}

func TestShouldSkipAfterCaptureUntilForecastMovesEnough(t *testing.T) {
	s := New()

	if s.ShouldSkip("m1", 60.0, model.SideYes, 1.0) {
		t.Fatal("expected ShouldSkip=false before any capture")
	}

	s.MarkOpportunityCaptured("m1", 60.0, model.SideYes)

	if !s.ShouldSkip("m1", 60.3, model.SideYes, 1.0) {
		t.Fatal("expected ShouldSkip=true for a sub-threshold forecast move")
	}

	if s.ShouldSkip("m1", 61.2, model.SideYes, 1.0) {
		t.Fatal("expected ShouldSkip=false once the forecast moved by >= significantChange")
	}

	if s.ShouldSkip("m1", 60.3, model.SideNo, 1.0) {
		t.Fatal("capture on SideYes should not suppress entry on SideNo for the same market")
	}
}
