package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
)

func newCrossingMarket(now time.Time) (model.Market, *store.DataStore) {
	market := model.Market{
		MarketID:   "m1",
		City:       "chicago",
		MetricType: model.MetricTempHigh,
		Comparison: model.ComparisonAbove,
		Threshold:  60.0,
		YesTokenID: "yes1",
		NoTokenID:  "no1",
		Active:     true,
		TargetDate: now.Add(6 * time.Hour),
	}
	ds := store.New()
	ds.AddMarket(market)
	ds.UpdatePrice("yes1", decimal.NewFromFloat(0.40), now.Add(-time.Minute))
	return market, ds
}

func TestSpeedStrategySkipsOnFirstForecast(t *testing.T) {
	now := time.Now()
	_, ds := newCrossingMarket(now)
	ds.UpdateForecast("m1", 55.0, now, model.SourceFile, 60.0, 0.5)

	s := NewSpeedStrategy(ds, DefaultSpeedConfig(), nil)
	signals := s.Evaluate(now)
	if len(signals) != 0 {
		t.Fatalf("expected no signals on first forecast, got %d", len(signals))
	}
}

func TestSpeedStrategyFiresOnCrossing(t *testing.T) {
	now := time.Now()
	_, ds := newCrossingMarket(now)
	ds.UpdateForecast("m1", 55.0, now.Add(-30*time.Second), model.SourceFile, 60.0, 0.5)
	ds.UpdateForecast("m1", 65.0, now, model.SourceFile, 60.0, 0.5)

	s := NewSpeedStrategy(ds, DefaultSpeedConfig(), nil)
	signals := s.Evaluate(now)
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal on a crossing, got %d", len(signals))
	}
	if signals[0].Side != model.SideYes {
		t.Fatalf("Side = %v, want YES for a warming crossing of an above-threshold market", signals[0].Side)
	}
}

func TestSpeedStrategySkipsStaleCrossing(t *testing.T) {
	now := time.Now()
	_, ds := newCrossingMarket(now)
	old := now.Add(-10 * time.Minute)
	ds.UpdateForecast("m1", 55.0, old.Add(-30*time.Second), model.SourceFile, 60.0, 0.5)
	ds.UpdateForecast("m1", 65.0, old, model.SourceFile, 60.0, 0.5)

	s := NewSpeedStrategy(ds, DefaultSpeedConfig(), nil)
	signals := s.Evaluate(now)
	if len(signals) != 0 {
		t.Fatalf("expected 0 signals for a crossing older than MaxCrossingAge, got %d", len(signals))
	}
}

func TestSpeedStrategySkipsWithoutPriceHistory(t *testing.T) {
	now := time.Now()
	market, _ := newCrossingMarket(now)
	ds := store.New()
	ds.AddMarket(market)
	ds.UpdateForecast("m1", 55.0, now.Add(-30*time.Second), model.SourceFile, 60.0, 0.5)
	ds.UpdateForecast("m1", 65.0, now, model.SourceFile, 60.0, 0.5)

	s := NewSpeedStrategy(ds, DefaultSpeedConfig(), nil)
	signals := s.Evaluate(now)
	if len(signals) != 0 {
		t.Fatalf("expected 0 signals without price history, got %d", len(signals))
	}
}

func TestSizingMultipliersIncreaseWithSigmaAndFreshness(t *testing.T) {
	low := sizeSpeedSignal(100, 0.5, time.Second, 0.5)
	high := sizeSpeedSignal(100, 0.5, time.Second, 3.5)
	if high <= low {
		t.Fatalf("expected higher sigma to produce larger size: low=%v high=%v", low, high)
	}

	fresh := sizeSpeedSignal(100, 0.5, time.Second, 2.0)
	stale := sizeSpeedSignal(100, 0.5, 90*time.Second, 2.0)
	if fresh <= stale {
		t.Fatalf("expected fresher crossing to produce larger size: fresh=%v stale=%v", fresh, stale)
	}
}
