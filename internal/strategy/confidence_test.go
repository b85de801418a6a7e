package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
)

func seedRuns(runs *store.RunHistoryStore, cityID string, mdl model.Model, base time.Time, temps []float64) {
	for i, temp := range temps {
		runs.AddRun(model.RunRecord{
			Model: mdl, CityID: cityID, CycleHour: i * 6,
			RunDate: base.Add(time.Duration(i) * 6 * time.Hour),
			MaxTempC: temp, Source: model.SourceFile,
			Timestamp: base.Add(time.Duration(i) * 6 * time.Hour),
		})
	}
}

func TestConfidenceStrategyRequiresAtLeastTwoRuns(t *testing.T) {
	now := time.Now()
	ds := store.New()
	runs := store.NewRunHistoryStore(5)
	market := model.Market{
		MarketID: "m1", City: "chicago", MetricType: model.MetricTempHigh,
		Comparison: model.ComparisonAbove, Threshold: 15.0, Active: true,
		YesTokenID: "yes1", NoTokenID: "no1", TargetDate: now.Add(48 * time.Hour),
	}
	ds.AddMarket(market)
	ds.UpdatePrice("yes1", decimal.NewFromFloat(0.3), now)
	seedRuns(runs, "chicago", model.ModelHRRR, now.Add(-6*time.Hour), []float64{20})

	s := NewConfidenceStrategy(ds, runs, DefaultConfidenceConfig(), nil)
	signals := s.Evaluate(now)
	if len(signals) != 0 {
		t.Fatalf("expected no signals with only one run, got %d", len(signals))
	}
}

func TestConfidenceStrategyFiresOnStableAgreeingModels(t *testing.T) {
	now := time.Now()
	ds := store.New()
	runs := store.NewRunHistoryStore(5)
	market := model.Market{
		MarketID: "m1", City: "chicago", MetricType: model.MetricTempHigh,
		Comparison: model.ComparisonAbove, Threshold: 15.0, Active: true,
		YesTokenID: "yes1", NoTokenID: "no1", TargetDate: now.Add(24 * time.Hour),
	}
	ds.AddMarket(market)
	ds.UpdatePrice("yes1", decimal.NewFromFloat(0.20), now)

	base := now.Add(-24 * time.Hour)
	seedRuns(runs, "chicago", model.ModelHRRR, base, []float64{20.0, 20.1, 20.0, 20.2, 20.1})
	seedRuns(runs, "chicago", model.ModelRAP, base, []float64{19.8})
	seedRuns(runs, "chicago", model.ModelGFS, base, []float64{20.5})

	s := NewConfidenceStrategy(ds, runs, DefaultConfidenceConfig(), nil)
	signals := s.Evaluate(now)
	if len(signals) != 1 {
		t.Fatalf("expected 1 confident signal, got %d", len(signals))
	}
	if signals[0].Side != model.SideYes {
		t.Fatalf("Side = %v, want YES given forecast far above threshold", signals[0].Side)
	}
	if signals[0].Confidence < confidenceGate {
		t.Fatalf("Confidence = %v, want >= %v", signals[0].Confidence, confidenceGate)
	}
}

func TestConfidenceStrategyRejectsUnstableRuns(t *testing.T) {
	now := time.Now()
	ds := store.New()
	runs := store.NewRunHistoryStore(5)
	market := model.Market{
		MarketID: "m1", City: "chicago", MetricType: model.MetricTempHigh,
		Comparison: model.ComparisonAbove, Threshold: 15.0, Active: true,
		YesTokenID: "yes1", NoTokenID: "no1", TargetDate: now.Add(24 * time.Hour),
	}
	ds.AddMarket(market)
	ds.UpdatePrice("yes1", decimal.NewFromFloat(0.20), now)

	base := now.Add(-24 * time.Hour)
	seedRuns(runs, "chicago", model.ModelHRRR, base, []float64{15.0, 19.0, 14.0, 21.0, 13.0})

	s := NewConfidenceStrategy(ds, runs, DefaultConfidenceConfig(), nil)
	signals := s.Evaluate(now)
	if len(signals) != 0 {
		t.Fatalf("expected no signals for wildly unstable runs, got %d", len(signals))
	}
}

func TestRegionForCityHierarchy(t *testing.T) {
	if HierarchyForCity("london").Primary != model.ModelECMWF {
		t.Fatal("expected london to use the Europe hierarchy (ECMWF primary)")
	}
	if HierarchyForCity("chicago").Primary != model.ModelHRRR {
		t.Fatal("expected chicago to use the US hierarchy (HRRR primary)")
	}
	if HierarchyForCity("nowhere").Primary != model.ModelGFS {
		t.Fatal("expected an unknown city to fall back to the global hierarchy (GFS primary)")
	}
}
