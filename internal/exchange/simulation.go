package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/exchange/book"
)

// bookDepthLevels/bookLevelUnit/bookLevelStep shape the synthetic L2 ladder
// bookFor quotes for every order: enough depth to absorb a typical single-signal
// fill at the quoted price, thinning out so a signal sized well beyond that
// depth pays realistic price impact instead of an instant fill.
const (
	bookDepthLevels = 5
	bookLevelUnit   = 25
)

var bookLevelStep = decimal.NewFromFloat(0.01)

// SimulationExchange fills orders against a synthetic per-token probability
// ladder seeded around the requested limit price, with no network I/O — the
// same "ModeSimple" behavior the paper trading engine this is grounded on
// offers for quick local iteration, generalized so size beyond the seeded
// depth slips realistically instead of filling flat at the quote.
type SimulationExchange struct {
	logger *zap.Logger

	mu        sync.Mutex
	orderSeq  int64
	lastPrice map[string]decimal.Decimal
	positions map[string]*Position
	books     map[string]*book.ProbabilityLadder
}

// NewSimulationExchange constructs an empty in-memory exchange.
func NewSimulationExchange(logger *zap.Logger) *SimulationExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulationExchange{
		logger:    logger,
		lastPrice: make(map[string]decimal.Decimal),
		positions: make(map[string]*Position),
		books:     make(map[string]*book.ProbabilityLadder),
	}
}

// bookFor returns the probability ladder for tokenID, re-quoting fresh
// depth around the order's limit price every call. A weather-threshold
// market re-quotes around whatever price a signal names rather than
// carrying a continuously-traded book, so there's no stale depth to
// match against when the next order names a price far from the last
// one. Callers must hold s.mu.
func (s *SimulationExchange) bookFor(tokenID string, around decimal.Decimal) *book.ProbabilityLadder {
	ladder := book.NewProbabilityLadder(tokenID)
	bids := make([]book.DepthLevel, 0, bookDepthLevels)
	asks := make([]book.DepthLevel, 0, bookDepthLevels)
	for i := 0; i < bookDepthLevels; i++ {
		offset := bookLevelStep.Mul(decimal.NewFromInt(int64(i)))
		size := decimal.NewFromInt(int64(bookLevelUnit * (i + 1)))

		asks = append(asks, book.DepthLevel{Price: around.Add(offset), Size: size})
		bids = append(bids, book.DepthLevel{Price: around.Sub(offset), Size: size})
	}
	ladder.SetAsks(asks)
	ladder.SetBids(bids)
	s.books[tokenID] = ladder
	return ladder
}

// consumeAsks reduces the ask levels an executed fill actually took
// liquidity from. Callers must hold s.mu.
func consumeAsks(ladder *book.ProbabilityLadder, fills []book.Fill) {
	for _, f := range fills {
		for _, lvl := range ladder.Asks() {
			if !lvl.Price.Equal(f.Price) {
				continue
			}
			remaining := lvl.Size.Sub(f.Size)
			if remaining.LessThan(decimal.Zero) {
				remaining = decimal.Zero
			}
			ladder.UpdateLevel(book.SideSell, f.Price, remaining)
			break
		}
	}
}

// SubmitOrder matches req against a synthetic ladder freshly quoted around
// req.Price for this order and updates the running average-entry position
// for req.TokenID.
func (s *SimulationExchange) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Size.LessThanOrEqual(decimal.Zero) {
		return OrderResult{}, fmt.Errorf("simulation exchange: order size must be positive")
	}
	if req.Price.LessThanOrEqual(decimal.Zero) || req.Price.GreaterThan(decimal.NewFromInt(1)) {
		return OrderResult{}, fmt.Errorf("simulation exchange: price %s out of [0,1] range", req.Price)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ladder := s.bookFor(req.TokenID, req.Price)
	askPrice, _ := ladder.BestAsk()
	spread := ladder.Spread()

	match := ladder.SimulateFill(book.SideBuy, req.Size)

	fillPrice := req.Price
	filledSize := req.Size
	if match.TotalSize.GreaterThan(decimal.Zero) {
		fillPrice = match.AvgPrice
		filledSize = match.TotalSize
		if match.Unfilled.GreaterThan(decimal.Zero) {
			// Depth beyond the seeded ladder clears at the worst quoted
			// level rather than being rejected outright.
			worst := match.Fills[len(match.Fills)-1].Price
			totalCost := match.TotalCost.Add(worst.Mul(match.Unfilled))
			filledSize = req.Size
			fillPrice = totalCost.Div(filledSize)
		}
		consumeAsks(ladder, match.Fills)
	}
	if fillPrice.GreaterThan(book.MaxProbability) {
		fillPrice = book.MaxProbability
	}

	s.orderSeq++
	orderID := fmt.Sprintf("sim-%d-%s", s.orderSeq, uuid.NewString()[:8])
	s.lastPrice[req.TokenID] = fillPrice

	pos, exists := s.positions[req.TokenID]
	if !exists {
		pos = &Position{TokenID: req.TokenID}
		s.positions[req.TokenID] = pos
	}
	if pos.Size.IsZero() {
		pos.AvgEntry = fillPrice
		pos.Size = filledSize
	} else {
		newSize := pos.Size.Add(filledSize)
		pos.AvgEntry = pos.Size.Mul(pos.AvgEntry).Add(filledSize.Mul(fillPrice)).Div(newSize)
		pos.Size = newSize
	}

	s.logger.Debug("simulation fill",
		zap.String("order_id", orderID),
		zap.String("market_id", req.MarketID),
		zap.String("token_id", req.TokenID),
		zap.String("requested_price", req.Price.String()),
		zap.String("best_ask", askPrice.String()),
		zap.String("spread", spread.String()),
		zap.String("fill_price", fillPrice.String()),
		zap.String("size", filledSize.String()),
	)

	return OrderResult{OrderID: orderID, FilledSize: filledSize, AvgFillPrice: fillPrice}, nil
}

// GetPrice returns the most recently filled price for tokenID.
func (s *SimulationExchange) GetPrice(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.lastPrice[tokenID]
	if !ok {
		return decimal.Zero, fmt.Errorf("simulation exchange: no price recorded for token %s", tokenID)
	}
	return p, nil
}

// GetPositions returns a snapshot of every non-zero simulated position.
func (s *SimulationExchange) GetPositions(ctx context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		if p.Size.IsZero() {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

var _ MarketExchange = (*SimulationExchange)(nil)
