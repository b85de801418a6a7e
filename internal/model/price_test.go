package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceHistoryAppendPrunesOldPoints(t *testing.T) {
	h := &PriceHistory{TokenID: "yes-1"}
	base := time.Now()

	h.Append(decimal.NewFromFloat(0.40), base)
	h.Append(decimal.NewFromFloat(0.41), base.Add(70*time.Minute))

	for _, p := range h.Points {
		if base.Add(70*time.Minute).Sub(p.Timestamp) > PriceRetention {
			t.Fatalf("point at %v older than retention window was retained", p.Timestamp)
		}
	}
	if len(h.Points) != 1 {
		t.Fatalf("expected 1 surviving point, got %d", len(h.Points))
	}
}

func TestVelocityZeroWithFewerThanTwoPointsInWindow(t *testing.T) {
	h := &PriceHistory{TokenID: "yes-1"}
	base := time.Now()

	h.Append(decimal.NewFromFloat(0.40), base)
	if !h.Velocity.IsZero() {
		t.Fatalf("velocity with a single point should be zero, got %s", h.Velocity)
	}

	h.Append(decimal.NewFromFloat(0.45), base.Add(5*time.Minute))
	if !h.Velocity.IsZero() {
		t.Fatalf("velocity with points outside the 60s window should be zero, got %s", h.Velocity)
	}
}

func TestVelocityComputedOverTrailingWindow(t *testing.T) {
	h := &PriceHistory{TokenID: "yes-1"}
	base := time.Now()

	h.Append(decimal.NewFromFloat(0.40), base)
	h.Append(decimal.NewFromFloat(0.46), base.Add(30*time.Second))

	want := decimal.NewFromFloat(0.06).Div(decimal.NewFromFloat(30))
	if !h.Velocity.Sub(want).Abs().LessThan(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("velocity = %s, want ~%s", h.Velocity, want)
	}
}

func TestLastReturnsFalseWhenEmpty(t *testing.T) {
	h := &PriceHistory{}
	if _, ok := h.Last(); ok {
		t.Fatal("Last() on empty history should report ok=false")
	}
}
