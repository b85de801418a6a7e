package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// PriceRetention is the maximum age a PricePoint may have before it
	// is pruned on the next insert.
	PriceRetention = 60 * time.Minute

	// VelocityWindow is the trailing window used to compute PriceHistory
	// velocity.
	VelocityWindow = 60 * time.Second
)

// PricePoint is a single observed price for a token at a point in time.
type PricePoint struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// PriceHistory is the append-only, pruned sequence of prices for one
// token, plus the derived per-second velocity over the trailing window.
type PriceHistory struct {
	TokenID     string
	Points      []PricePoint
	LastUpdated time.Time
	Velocity    decimal.Decimal
}

// Append inserts a new point, prunes points older than PriceRetention from
// the head, and recomputes Velocity over the trailing VelocityWindow via a
// reverse scan. Timestamps must be monotonically non-decreasing; the
// caller (DataStore) is the sole mutator and enforces ordering.
func (h *PriceHistory) Append(p decimal.Decimal, ts time.Time) {
	h.Points = append(h.Points, PricePoint{Price: p, Timestamp: ts})
	h.pruneBefore(ts.Add(-PriceRetention))
	h.LastUpdated = ts
	h.Velocity = h.computeVelocity(ts)
}

// pruneBefore drops points whose timestamp is strictly before cutoff,
// scanning from the head since Points is timestamp-ordered.
func (h *PriceHistory) pruneBefore(cutoff time.Time) {
	i := 0
	for i < len(h.Points) && h.Points[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.Points = h.Points[i:]
	}
}

// computeVelocity scans backward from the tail collecting points within
// VelocityWindow of now. Returns zero unless at least two points fall in
// the window (P3).
func (h *PriceHistory) computeVelocity(now time.Time) decimal.Decimal {
	cutoff := now.Add(-VelocityWindow)
	n := len(h.Points)
	start := n
	for start > 0 && !h.Points[start-1].Timestamp.Before(cutoff) {
		start--
	}
	inWindow := h.Points[start:]
	if len(inWindow) < 2 {
		return decimal.Zero
	}
	first := inWindow[0]
	last := inWindow[len(inWindow)-1]
	dt := last.Timestamp.Sub(first.Timestamp).Seconds()
	if dt <= 0 {
		return decimal.Zero
	}
	return last.Price.Sub(first.Price).Div(decimal.NewFromFloat(dt))
}

// Last returns the most recent point and true, or the zero value and
// false if the history is empty.
func (h *PriceHistory) Last() (PricePoint, bool) {
	if len(h.Points) == 0 {
		return PricePoint{}, false
	}
	return h.Points[len(h.Points)-1], true
}
