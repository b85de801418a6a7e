// Package book provides an in-memory probability ladder used by the
// simulation exchange adapter to produce realistic fills for binary
// weather-threshold markets without any network I/O. A weather share
// settles at exactly $1 or $0, so every quoted price on the ladder is
// a probability and is clamped to [0,1] rather than left as an
// unbounded instrument price.
package book

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Side is the side of a simulated fill against the ladder.
type Side int

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// MinProbability and MaxProbability bound every price this package
// accepts: a YES/NO share is a $1-settled binary outcome, so its price
// is always a probability.
var (
	MinProbability = decimal.Zero
	MaxProbability = decimal.NewFromInt(1)
)

func clampProbability(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(MinProbability) {
		return MinProbability
	}
	if p.GreaterThan(MaxProbability) {
		return MaxProbability
	}
	return p
}

// DepthLevel is an aggregated price level on a ProbabilityLadder.
type DepthLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ProbabilityLadder is a synthetic L2 ladder of bid/ask depth for one
// outcome token. Unlike a generic orderbook it enforces the [0,1]
// probability invariant on every level it stores.
type ProbabilityLadder struct {
	TokenID string

	bids []DepthLevel // sorted by price descending (best bid first)
	asks []DepthLevel // sorted by price ascending (best ask first)
	mu   sync.RWMutex
}

// NewProbabilityLadder creates a new empty ladder for tokenID.
func NewProbabilityLadder(tokenID string) *ProbabilityLadder {
	return &ProbabilityLadder{
		TokenID: tokenID,
		bids:    make([]DepthLevel, 0),
		asks:    make([]DepthLevel, 0),
	}
}

// BestBid returns the best (highest) bid price and size. Returns zero
// values if no bids exist.
func (l *ProbabilityLadder) BestBid() (price, size decimal.Decimal) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.bids) == 0 {
		return decimal.Zero, decimal.Zero
	}
	return l.bids[0].Price, l.bids[0].Size
}

// BestAsk returns the best (lowest) ask price and size. Returns zero
// values if no asks exist.
func (l *ProbabilityLadder) BestAsk() (price, size decimal.Decimal) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.asks) == 0 {
		return decimal.Zero, decimal.Zero
	}
	return l.asks[0].Price, l.asks[0].Size
}

// Midpoint returns the midpoint between best bid and ask. Returns zero
// if either side is empty.
func (l *ProbabilityLadder) Midpoint() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.bids) == 0 || len(l.asks) == 0 {
		return decimal.Zero
	}
	return l.bids[0].Price.Add(l.asks[0].Price).Div(decimal.NewFromInt(2))
}

// Spread returns the bid-ask spread. Returns zero if either side is
// empty.
func (l *ProbabilityLadder) Spread() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.bids) == 0 || len(l.asks) == 0 {
		return decimal.Zero
	}
	return l.asks[0].Price.Sub(l.bids[0].Price)
}

// Asks returns the ask levels (best first).
func (l *ProbabilityLadder) Asks() []DepthLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()

	asks := make([]DepthLevel, len(l.asks))
	copy(asks, l.asks)
	return asks
}

// Bids returns the bid levels (best first).
func (l *ProbabilityLadder) Bids() []DepthLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bids := make([]DepthLevel, len(l.bids))
	copy(bids, l.bids)
	return bids
}

// SetBids replaces all bid levels, clamping each price to [0,1].
func (l *ProbabilityLadder) SetBids(levels []DepthLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bids = make([]DepthLevel, len(levels))
	for i, lvl := range levels {
		l.bids[i] = DepthLevel{Price: clampProbability(lvl.Price), Size: lvl.Size}
	}

	sort.Slice(l.bids, func(i, j int) bool {
		return l.bids[i].Price.GreaterThan(l.bids[j].Price)
	})
}

// SetAsks replaces all ask levels, clamping each price to [0,1].
func (l *ProbabilityLadder) SetAsks(levels []DepthLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.asks = make([]DepthLevel, len(levels))
	for i, lvl := range levels {
		l.asks[i] = DepthLevel{Price: clampProbability(lvl.Price), Size: lvl.Size}
	}

	sort.Slice(l.asks, func(i, j int) bool {
		return l.asks[i].Price.LessThan(l.asks[j].Price)
	})
}

// UpdateLevel updates a single price level on the specified side,
// clamping price to [0,1]. If size is zero, the level is removed.
func (l *ProbabilityLadder) UpdateLevel(side Side, price, size decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	price = clampProbability(price)
	if side == SideBuy {
		l.updateBidLevel(price, size)
	} else {
		l.updateAskLevel(price, size)
	}
}

func (l *ProbabilityLadder) updateBidLevel(price, size decimal.Decimal) {
	idx := -1
	for i, level := range l.bids {
		if level.Price.Equal(price) {
			idx = i
			break
		}
	}

	if size.IsZero() {
		if idx >= 0 {
			l.bids = append(l.bids[:idx], l.bids[idx+1:]...)
		}
		return
	}

	if idx >= 0 {
		l.bids[idx].Size = size
		return
	}

	newLevel := DepthLevel{Price: price, Size: size}
	insertIdx := sort.Search(len(l.bids), func(i int) bool {
		return l.bids[i].Price.LessThan(price)
	})
	l.bids = append(l.bids, DepthLevel{})
	copy(l.bids[insertIdx+1:], l.bids[insertIdx:])
	l.bids[insertIdx] = newLevel
}

func (l *ProbabilityLadder) updateAskLevel(price, size decimal.Decimal) {
	idx := -1
	for i, level := range l.asks {
		if level.Price.Equal(price) {
			idx = i
			break
		}
	}

	if size.IsZero() {
		if idx >= 0 {
			l.asks = append(l.asks[:idx], l.asks[idx+1:]...)
		}
		return
	}

	if idx >= 0 {
		l.asks[idx].Size = size
		return
	}

	newLevel := DepthLevel{Price: price, Size: size}
	insertIdx := sort.Search(len(l.asks), func(i int) bool {
		return l.asks[i].Price.GreaterThan(price)
	})
	l.asks = append(l.asks, DepthLevel{})
	copy(l.asks[insertIdx+1:], l.asks[insertIdx:])
	l.asks[insertIdx] = newLevel
}

// FillResult is the result of simulating a fill against the ladder.
type FillResult struct {
	Side        Side
	TotalSize   decimal.Decimal
	TotalCost   decimal.Decimal
	AvgPrice    decimal.Decimal
	Fills       []Fill
	Unfilled    decimal.Decimal
	PriceImpact decimal.Decimal // as percentage
}

// Fill is a single fill against one depth level.
type Fill struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// SimulateFill simulates filling size shares on side against the
// ladder's opposing depth. This does NOT modify the ladder.
func (l *ProbabilityLadder) SimulateFill(side Side, size decimal.Decimal) FillResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var levels []DepthLevel
	if side == SideBuy {
		levels = l.asks
	} else {
		levels = l.bids
	}

	result := FillResult{
		Side:      side,
		TotalSize: decimal.Zero,
		TotalCost: decimal.Zero,
		Fills:     make([]Fill, 0),
	}

	remaining := size
	var firstPrice decimal.Decimal

	for _, level := range levels {
		if remaining.IsZero() {
			break
		}

		if result.TotalSize.IsZero() {
			firstPrice = level.Price
		}

		fillSize := level.Size
		if fillSize.GreaterThan(remaining) {
			fillSize = remaining
		}

		result.Fills = append(result.Fills, Fill{Price: level.Price, Size: fillSize})
		result.TotalCost = result.TotalCost.Add(level.Price.Mul(fillSize))
		result.TotalSize = result.TotalSize.Add(fillSize)
		remaining = remaining.Sub(fillSize)
	}

	result.Unfilled = remaining

	if result.TotalSize.GreaterThan(decimal.Zero) {
		result.AvgPrice = result.TotalCost.Div(result.TotalSize)
		if !firstPrice.IsZero() {
			diff := result.AvgPrice.Sub(firstPrice).Abs()
			result.PriceImpact = diff.Div(firstPrice).Mul(decimal.NewFromInt(100))
		}
	}

	return result
}
