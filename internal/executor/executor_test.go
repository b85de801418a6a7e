package executor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/weatheredge/nwp-signal-engine/internal/exchange"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
)

func newFixture(t *testing.T) (*Executor, *exchange.SimulationExchange, *store.DataStore) {
	t.Helper()
	ds := store.New()
	ds.AddMarket(model.Market{
		MarketID:   "chicago-high-60",
		City:       "chicago",
		MetricType: model.MetricTempHigh,
		Comparison: model.ComparisonAbove,
		Threshold:  60,
		TargetDate: time.Now().Add(24 * time.Hour),
		YesTokenID: "yes1",
		NoTokenID:  "no1",
		Active:     true,
		YesPrice:   decimal.NewFromFloat(0.40),
		NoPrice:    decimal.NewFromFloat(0.60),
	})

	ex := exchange.NewSimulationExchange(zaptest.NewLogger(t))
	ex.SubmitOrder(context.Background(), exchange.OrderRequest{
		MarketID: "chicago-high-60", TokenID: "yes1", Side: model.SideYes,
		Price: decimal.NewFromFloat(0.40), Size: decimal.NewFromFloat(1),
	})

	cfg := DefaultConfig()
	cfg.TradeCooldown = 50 * time.Millisecond
	e := New(ex, ds, cfg, zaptest.NewLogger(t))
	return e, ex, ds
}

func TestExecuteSubmitsOrderOnPositiveEdge(t *testing.T) {
	e, _, _ := newFixture(t)
	signal := model.EntrySignal{
		MarketID: "chicago-high-60", Side: model.SideYes, Size: 10,
		Edge: 0.3, Confidence: 0.8, Urgency: model.UrgencyHigh,
	}
	result := e.Execute(context.Background(), signal)
	if !result.Executed {
		t.Fatalf("expected execution, got error: %v", result.Error)
	}
	if result.OrderID == "" {
		t.Fatal("expected a non-empty order id")
	}
}

func TestExecuteRejectsOnCooldown(t *testing.T) {
	e, _, _ := newFixture(t)
	signal := model.EntrySignal{
		MarketID: "chicago-high-60", Side: model.SideYes, Size: 10,
		Edge: 0.3, Confidence: 0.8,
	}
	first := e.Execute(context.Background(), signal)
	if !first.Executed {
		t.Fatalf("expected first execution to succeed, got: %v", first.Error)
	}
	second := e.Execute(context.Background(), signal)
	if second.Executed {
		t.Fatal("expected second execution within cooldown to be rejected")
	}
	if second.Error == nil || second.Error.Code != ErrCooldown {
		t.Fatalf("expected ErrCooldown, got %v", second.Error)
	}
}

func TestExecuteAllowsAfterCooldownExpires(t *testing.T) {
	e, _, _ := newFixture(t)
	signal := model.EntrySignal{
		MarketID: "chicago-high-60", Side: model.SideYes, Size: 10,
		Edge: 0.3, Confidence: 0.8, ForecastValue: 61.0,
	}
	if r := e.Execute(context.Background(), signal); !r.Executed {
		t.Fatalf("expected first execution to succeed, got: %v", r.Error)
	}
	time.Sleep(60 * time.Millisecond)
	// Move the forecast past SignificantForecastChange so only the
	// cooldown, not the repeat-opportunity check, is under test.
	moved := signal
	moved.ForecastValue = 63.0
	r := e.Execute(context.Background(), moved)
	if !r.Executed {
		t.Fatalf("expected execution after cooldown expiry, got: %v", r.Error)
	}
}

func TestExecuteRejectsRepeatOpportunityUntilForecastMoves(t *testing.T) {
	e, _, _ := newFixture(t)
	signal := model.EntrySignal{
		MarketID: "chicago-high-60", Side: model.SideYes, Size: 10,
		Edge: 0.3, Confidence: 0.8, ForecastValue: 61.0,
	}
	first := e.Execute(context.Background(), signal)
	if !first.Executed {
		t.Fatalf("expected first execution to succeed, got: %v", first.Error)
	}

	time.Sleep(60 * time.Millisecond)

	repeat := signal
	repeat.ForecastValue = 61.2
	result := e.Execute(context.Background(), repeat)
	if result.Executed {
		t.Fatal("expected execution to be skipped for a barely-moved forecast")
	}
	if result.Error == nil || result.Error.Code != ErrOpportunityCaptured {
		t.Fatalf("expected ErrOpportunityCaptured, got %v", result.Error)
	}

	time.Sleep(60 * time.Millisecond)

	moved := signal
	moved.ForecastValue = 63.0
	result = e.Execute(context.Background(), moved)
	if !result.Executed {
		t.Fatalf("expected execution once the forecast moved by >= SignificantForecastChange, got: %v", result.Error)
	}
}

func TestExecuteRejectsOnSlippage(t *testing.T) {
	e, ex, _ := newFixture(t)
	ex.SubmitOrder(context.Background(), exchange.OrderRequest{
		MarketID: "chicago-high-60", TokenID: "yes1", Side: model.SideYes,
		Price: decimal.NewFromFloat(0.90), Size: decimal.NewFromFloat(1),
	})
	signal := model.EntrySignal{
		MarketID: "chicago-high-60", Side: model.SideYes, Size: 10,
		Edge: 0.3, Confidence: 0.8,
	}
	r := e.Execute(context.Background(), signal)
	if r.Executed {
		t.Fatal("expected slippage rejection")
	}
	if r.Error == nil || r.Error.Code != ErrPriceSlippage {
		t.Fatalf("expected ErrPriceSlippage, got %v", r.Error)
	}
}

func TestExecuteRejectsOnNoEdge(t *testing.T) {
	e, _, _ := newFixture(t)
	signal := model.EntrySignal{
		MarketID: "chicago-high-60", Side: model.SideYes, Size: 10,
		Edge: 0, Confidence: 0.8,
	}
	r := e.Execute(context.Background(), signal)
	if r.Executed {
		t.Fatal("expected no-action rejection for zero edge")
	}
	if r.Error == nil || r.Error.Code != ErrNoAction {
		t.Fatalf("expected ErrNoAction, got %v", r.Error)
	}
}

func TestExecuteBatchPacesBetweenOrders(t *testing.T) {
	ds := store.New()
	ds.AddMarket(model.Market{
		MarketID: "m1", YesTokenID: "y1", NoTokenID: "n1", Active: true,
		TargetDate: time.Now().Add(24 * time.Hour),
		YesPrice:   decimal.NewFromFloat(0.40), NoPrice: decimal.NewFromFloat(0.60),
	})
	ds.AddMarket(model.Market{
		MarketID: "m2", YesTokenID: "y2", NoTokenID: "n2", Active: true,
		TargetDate: time.Now().Add(24 * time.Hour),
		YesPrice:   decimal.NewFromFloat(0.40), NoPrice: decimal.NewFromFloat(0.60),
	})
	ex := exchange.NewSimulationExchange(nil)
	ctx := context.Background()
	ex.SubmitOrder(ctx, exchange.OrderRequest{TokenID: "y1", Side: model.SideYes, Price: decimal.NewFromFloat(0.40), Size: decimal.NewFromFloat(1)})
	ex.SubmitOrder(ctx, exchange.OrderRequest{TokenID: "y2", Side: model.SideYes, Price: decimal.NewFromFloat(0.40), Size: decimal.NewFromFloat(1)})

	cfg := DefaultConfig()
	cfg.InterOrderPacing = 5 * time.Millisecond
	e := New(ex, ds, cfg, nil)

	signals := []model.EntrySignal{
		{MarketID: "m1", Side: model.SideYes, Edge: 0.3, Confidence: 0.8},
		{MarketID: "m2", Side: model.SideYes, Edge: 0.3, Confidence: 0.8},
	}
	start := time.Now()
	results := e.ExecuteBatch(ctx, signals)
	elapsed := time.Since(start)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if elapsed < cfg.InterOrderPacing {
		t.Fatalf("expected at least %v between batched orders, got %v", cfg.InterOrderPacing, elapsed)
	}
}

func TestKellySizeSharesScalesWithGuaranteed(t *testing.T) {
	base := kellySizeShares(0.2, 0.8, 100, 0.40, false, 2.0)
	guaranteed := kellySizeShares(0.2, 0.8, 100, 0.40, true, 2.0)
	if guaranteed <= base {
		t.Fatalf("expected guaranteed sizing (%v) to exceed base sizing (%v)", guaranteed, base)
	}
}

func TestChooseLimitPriceCapsAtCeiling(t *testing.T) {
	p := chooseLimitPrice(decimal.NewFromFloat(0.97), false)
	if !p.Equal(decimal.NewFromFloat(0.98)) {
		t.Fatalf("price = %v, want 0.98", p)
	}
	p2 := chooseLimitPrice(decimal.NewFromFloat(0.97), true)
	if !p2.Equal(decimal.NewFromFloat(0.99)) {
		t.Fatalf("guaranteed price = %v, want 0.99 (capped)", p2)
	}
}
