// Package executor implements OrderExecutor (C12): slippage/price-chase
// guards, Kelly sizing, optimistic locking with a trade cooldown, and the
// per-market order state machine, grounded on the teacher's
// pkg/trader/policy/limits.go (cooldown, slippage, mutex-guarded state)
// and pkg/trader/paper/engine.go (running-average position bookkeeping).
package executor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/exchange"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
	"github.com/weatheredge/nwp-signal-engine/internal/store"
)

// State is a market order attempt's state machine position.
type State string

const (
	StateIdle      State = "IDLE"
	StateLocked    State = "LOCKED"
	StateSubmitted State = "SUBMITTED"
	StateConfirmed State = "CONFIRMED"
	StateFailed    State = "FAILED"
)

// ErrCode enumerates the executor's abort reasons.
type ErrCode string

const (
	ErrPriceSlippage       ErrCode = "PRICE_SLIPPAGE"
	ErrPriceChase          ErrCode = "PRICE_CHASE"
	ErrCooldown            ErrCode = "COOLDOWN"
	ErrNoAction            ErrCode = "NO_ACTION"
	ErrMarketUnknown       ErrCode = "MARKET_UNKNOWN"
	ErrExchange            ErrCode = "EXCHANGE_ERROR"
	ErrOpportunityCaptured ErrCode = "OPPORTUNITY_CAPTURED"
)

// ExecutionError carries a typed abort reason alongside the underlying
// cause, if any.
type ExecutionError struct {
	Code ErrCode
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ExecutionResult is the outcome of one execute call.
type ExecutionResult struct {
	Executed bool
	OrderID  string
	Error    *ExecutionError
}

// Config are OrderExecutor's tunables.
type Config struct {
	SlippageTolerance       float64
	PriceChaseAbsoluteDelta float64
	PriceChaseRatio         float64
	MaxPositionUSDC         float64
	GuaranteedMultiplier    float64
	TradeCooldown           time.Duration
	InterOrderPacing        time.Duration
	DustSize                float64
	// SignificantForecastChange is the minimum absolute forecast-value
	// move, in the market's native metric units, required to re-enable
	// entry on a (market, side) whose opportunity was already captured.
	SignificantForecastChange float64
}

// DefaultConfig returns spec §4.12's literal example values.
func DefaultConfig() Config {
	return Config{
		SlippageTolerance:         0.05,
		PriceChaseAbsoluteDelta:   0.05,
		PriceChaseRatio:           1.10,
		MaxPositionUSDC:           100,
		GuaranteedMultiplier:      2.0,
		TradeCooldown:             60 * time.Second,
		InterOrderPacing:          1 * time.Second,
		DustSize:                  0.01,
		SignificantForecastChange: 1.0,
	}
}

type cachedPosition struct {
	tokenID  string
	size     decimal.Decimal
	avgEntry decimal.Decimal
}

type lockEntry struct {
	lockedAt time.Time
	state    State
}

// Executor is OrderExecutor (C12): it turns EntrySignals into exchange
// submissions, protected by an optimistic per-market lock and cooldown.
type Executor struct {
	exchange exchange.MarketExchange
	dataStore *store.DataStore
	cfg      Config
	logger   *zap.Logger

	mu            sync.Mutex
	recentlyTraded map[string]lockEntry
	positions     map[string]cachedPosition
}

// New constructs an Executor.
func New(ex exchange.MarketExchange, ds *store.DataStore, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		exchange:       ex,
		dataStore:      ds,
		cfg:            cfg,
		logger:         logger,
		recentlyTraded: make(map[string]lockEntry),
		positions:      make(map[string]cachedPosition),
	}
}

// Execute runs the full sequence for one signal: cooldown check,
// slippage/price-chase guards, Kelly sizing, optimistic lock, submission,
// and position-cache update.
func (e *Executor) Execute(ctx context.Context, signal model.EntrySignal) ExecutionResult {
	if signal.Side == "" {
		return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrNoAction}}
	}

	if e.isOnCooldown(signal.MarketID) {
		return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrCooldown}}
	}

	if e.dataStore.ShouldSkip(signal.MarketID, signal.ForecastValue, signal.Side, e.cfg.SignificantForecastChange) {
		return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrOpportunityCaptured}}
	}

	state, ok := e.dataStore.GetMarketState(signal.MarketID)
	if !ok {
		return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrMarketUnknown}}
	}

	tokenID := state.Market.YesTokenID
	if signal.Side == model.SideNo {
		tokenID = state.Market.NoTokenID
	}

	currentPrice, err := e.exchange.GetPrice(ctx, tokenID)
	if err != nil {
		return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrExchange, Err: err}}
	}

	snapshotPrice := state.Market.YesPrice
	if signal.Side == model.SideNo {
		snapshotPrice = state.Market.NoPrice
	}
	if !snapshotPrice.IsZero() {
		diff := currentPrice.Sub(snapshotPrice).Abs()
		if diff.GreaterThan(decimal.NewFromFloat(e.cfg.SlippageTolerance)) {
			return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrPriceSlippage}}
		}
	}

	if cached, ok := e.getPosition(tokenID); ok && cached.size.GreaterThan(decimal.NewFromFloat(e.cfg.DustSize)) && !cached.avgEntry.IsZero() {
		priceDiff, _ := currentPrice.Sub(cached.avgEntry).Float64()
		priceRatioDec := currentPrice.Div(cached.avgEntry)
		priceRatio, _ := priceRatioDec.Float64()
		if priceDiff > e.cfg.PriceChaseAbsoluteDelta || priceRatio > e.cfg.PriceChaseRatio {
			return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrPriceChase}}
		}
	}

	priceF, _ := currentPrice.Float64()
	shares := kellySizeShares(signal.Edge, signal.Confidence, e.cfg.MaxPositionUSDC, priceF, signal.IsGuaranteed, e.cfg.GuaranteedMultiplier)
	if shares <= 0 {
		return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrNoAction}}
	}

	limitPrice := chooseLimitPrice(currentPrice, signal.IsGuaranteed)

	e.lock(signal.MarketID)

	result, err := e.exchange.SubmitOrder(ctx, exchange.OrderRequest{
		MarketID: signal.MarketID,
		TokenID:  tokenID,
		Side:     signal.Side,
		Price:    limitPrice,
		Size:     decimal.NewFromFloat(shares),
	})
	if err != nil {
		e.releaseLock(signal.MarketID)
		return ExecutionResult{Executed: false, Error: &ExecutionError{Code: ErrExchange, Err: err}}
	}

	e.setState(signal.MarketID, StateSubmitted)
	e.updatePositionCache(tokenID, result.FilledSize, result.AvgFillPrice)
	e.dataStore.MarkOpportunityCaptured(signal.MarketID, signal.ForecastValue, signal.Side)
	e.setState(signal.MarketID, StateConfirmed)

	e.logger.Info("order executed",
		zap.String("market_id", signal.MarketID),
		zap.String("order_id", result.OrderID),
		zap.String("side", string(signal.Side)),
		zap.String("size", result.FilledSize.String()),
		zap.String("price", result.AvgFillPrice.String()),
	)

	return ExecutionResult{Executed: true, OrderID: result.OrderID}
}

// ExecuteBatch executes signals sequentially with InterOrderPacing
// between submissions.
func (e *Executor) ExecuteBatch(ctx context.Context, signals []model.EntrySignal) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(signals))
	for i, sig := range signals {
		results = append(results, e.Execute(ctx, sig))
		if i < len(signals)-1 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(e.cfg.InterOrderPacing):
			}
		}
	}
	return results
}

// isOnCooldown reports whether marketId has a lock younger than
// TradeCooldown, auto-expiring the entry on read if it has aged out.
func (e *Executor) isOnCooldown(marketID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.recentlyTraded[marketID]
	if !ok {
		return false
	}
	if time.Since(entry.lockedAt) >= e.cfg.TradeCooldown {
		delete(e.recentlyTraded, marketID)
		return false
	}
	return true
}

func (e *Executor) lock(marketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recentlyTraded[marketID] = lockEntry{lockedAt: time.Now(), state: StateLocked}
}

func (e *Executor) releaseLock(marketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.recentlyTraded, marketID)
}

func (e *Executor) setState(marketID string, s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry := e.recentlyTraded[marketID]
	entry.state = s
	e.recentlyTraded[marketID] = entry
}

func (e *Executor) getPosition(tokenID string) (cachedPosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[tokenID]
	return p, ok
}

func (e *Executor) updatePositionCache(tokenID string, newSize, newPrice decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, ok := e.positions[tokenID]
	if !ok || existing.size.IsZero() {
		e.positions[tokenID] = cachedPosition{tokenID: tokenID, size: newSize, avgEntry: newPrice}
		return
	}
	totalSize := existing.size.Add(newSize)
	avg := existing.size.Mul(existing.avgEntry).Add(newSize.Mul(newPrice)).Div(totalSize)
	e.positions[tokenID] = cachedPosition{tokenID: tokenID, size: totalSize, avgEntry: avg}
}

// SyncPositions refreshes the cache from externally reported positions,
// preserving entries for tokens whose owning market is within its trade
// cooldown, since the external source may lag the optimistic cache
// updated at submission time.
func (e *Executor) SyncPositions(external []exchange.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()

	protected := make(map[string]cachedPosition)
	for tokenID, p := range e.positions {
		marketID, ok := e.dataStore.GetMarketIDByToken(tokenID)
		if !ok {
			continue
		}
		if _, locked := e.recentlyTraded[marketID]; locked {
			protected[tokenID] = p
		}
	}

	fresh := make(map[string]cachedPosition, len(external))
	for _, p := range external {
		fresh[p.TokenID] = cachedPosition{tokenID: p.TokenID, size: p.Size, avgEntry: p.AvgEntry}
	}
	for tokenID, p := range protected {
		fresh[tokenID] = p
	}
	e.positions = fresh
}

// kellySizeShares computes share count via half-Kelly sizing, clamped to
// [1, floor(maxPos/price)].
func kellySizeShares(edge, confidence, maxPosUSDC, price float64, guaranteed bool, guaranteedMultiplier float64) float64 {
	if price <= 0 {
		return 0
	}
	kelly := edge * confidence
	usdc := maxPosUSDC * math.Min(kelly*10/2, 1)
	if guaranteed {
		usdc *= guaranteedMultiplier
	}
	if usdc <= 0 {
		return 0
	}
	shares := math.Floor(usdc / price)
	maxShares := math.Floor(maxPosUSDC / price)
	if shares > maxShares {
		shares = maxShares
	}
	if shares < 1 {
		shares = 1
	}
	return shares
}

// chooseLimitPrice picks min(price+0.01, 0.99), or +0.05 when the signal
// is guaranteed, per spec §4.12.
func chooseLimitPrice(price decimal.Decimal, guaranteed bool) decimal.Decimal {
	bump := decimal.NewFromFloat(0.01)
	if guaranteed {
		bump = decimal.NewFromFloat(0.05)
	}
	candidate := price.Add(bump)
	ceiling := decimal.NewFromFloat(0.99)
	if candidate.GreaterThan(ceiling) {
		return ceiling
	}
	return candidate
}
