// Package store implements DataStore (C7) and RunHistoryStore (C8): the
// in-memory, owner-serialized market/price/forecast state and the
// per-(city, model) run-history circular buffers used for stability
// analysis.
//
// The RWMutex-guarded maps, token→market index, and append-then-prune
// sequence idiom are grounded on pkg/trader/paper/engine.go's
// mutex-guarded Account map and pkg/polymarket/book/orderbook.go's
// sorted-slice + reverse-scan pattern.
package store

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

// Stats summarizes DataStore's current size, for health/status
// reporting.
type Stats struct {
	MarketCount int
	TotalPricePoints int
	TotalForecastSnapshots int
}

// DataStore is the owner-serialized singleton holding every MarketState.
// It is never deleted from within a process lifetime: markets are only
// added, priced, and forecasted, matching spec §4.7's append-only
// invariant.
type DataStore struct {
	mu           sync.RWMutex
	markets      map[string]*model.MarketState
	tokenToMarket map[string]string
	opportunities map[string]capturedOpportunity

	notifyMu sync.Mutex
	priceSubs []func(marketID string, history model.PriceHistory)
}

// capturedOpportunity is the forecast value an entry was taken at, for
// a given market and side.
type capturedOpportunity struct {
	value float64
}

func opportunityKey(marketID string, side model.Side) string {
	return marketID + "|" + string(side)
}

// New constructs an empty DataStore.
func New() *DataStore {
	return &DataStore{
		markets:       make(map[string]*model.MarketState),
		tokenToMarket: make(map[string]string),
		opportunities: make(map[string]capturedOpportunity),
	}
}

// AddMarket registers market, idempotently. A second call for the same
// MarketID is a no-op — the first-registered market's state is kept.
func (s *DataStore) AddMarket(market model.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.markets[market.MarketID]; exists {
		return
	}
	s.markets[market.MarketID] = &model.MarketState{Market: market}
	s.tokenToMarket[market.YesTokenID] = market.MarketID
	s.tokenToMarket[market.NoTokenID] = market.MarketID
}

// MarkOpportunityCaptured records that marketID/side was just acted on
// at forecast value v. A subsequent ShouldSkip call for the same
// market and side reports skip=true until the forecast moves by at
// least significantChange.
func (s *DataStore) MarkOpportunityCaptured(marketID string, v float64, side model.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities[opportunityKey(marketID, side)] = capturedOpportunity{value: v}
}

// ShouldSkip reports whether marketID/side has an already-captured
// opportunity whose forecast value is still within significantChange
// of v — i.e. entry should be suppressed because nothing material has
// moved since the last capture.
func (s *DataStore) ShouldSkip(marketID string, v float64, side model.Side, significantChange float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	captured, ok := s.opportunities[opportunityKey(marketID, side)]
	if !ok {
		return false
	}
	delta := v - captured.value
	if delta < 0 {
		delta = -delta
	}
	return delta < significantChange
}

// SubscribePriceUpdates registers fn to be invoked, inline, whenever
// UpdatePrice changes a market's price history. This is the "internal
// notification consumable by price-tracker subscribers" spec §4.7
// names; it is intentionally simpler than the full EventBus since it's
// in-process fan-out with a single producer.
func (s *DataStore) SubscribePriceUpdates(fn func(marketID string, history model.PriceHistory)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.priceSubs = append(s.priceSubs, fn)
}

func (s *DataStore) notifyPriceUpdate(marketID string, history model.PriceHistory) {
	s.notifyMu.Lock()
	subs := make([]func(string, model.PriceHistory), len(s.priceSubs))
	copy(subs, s.priceSubs)
	s.notifyMu.Unlock()
	for _, fn := range subs {
		fn(marketID, history)
	}
}

// UpdatePrice locates the market owning tokenID, appends a PricePoint,
// prunes points older than model.PriceRetention, and recomputes
// velocity over the trailing model.VelocityWindow.
func (s *DataStore) UpdatePrice(tokenID string, price decimal.Decimal, timestamp time.Time) bool {
	s.mu.Lock()
	marketID, ok := s.tokenToMarket[tokenID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	state := s.markets[marketID]

	var history *model.PriceHistory
	isYes := tokenID == state.Market.YesTokenID
	if isYes {
		history = &state.YesHistory
		state.Market.YesPrice = price
	} else {
		history = &state.NoHistory
		state.Market.NoPrice = price
	}
	history.TokenID = tokenID
	history.Append(price, timestamp)
	snapshot := *history
	s.mu.Unlock()

	s.notifyPriceUpdate(marketID, snapshot)
	return true
}

// UpdateForecast appends snapshot to marketID's forecast history,
// deriving previousValue/valueChanged/thresholdPosition against the
// immediately preceding snapshot, and sets lastForecast. Forecast
// history older than model.ForecastRetention is pruned.
func (s *DataStore) UpdateForecast(marketID string, value float64, timestamp time.Time, source model.Source, threshold, deadBand float64) (model.ForecastSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.markets[marketID]
	if !ok {
		return model.ForecastSnapshot{}, false
	}

	snapshot := model.ForecastSnapshot{
		MarketID:          marketID,
		Value:             value,
		Timestamp:         timestamp,
		Source:            source,
		ThresholdPosition: model.ComputeThresholdPosition(value, threshold, deadBand),
	}
	if state.LastForecast != nil {
		prev := state.LastForecast.Value
		snapshot.PreviousValue = &prev
		snapshot.ValueChanged = model.ValueChangedBy(value, prev, model.TemperatureChangeEpsilon)
		if snapshot.ValueChanged {
			snapshot.ChangeTimestamp = timestamp
		} else {
			snapshot.ChangeTimestamp = state.LastForecast.ChangeTimestamp
		}
	}

	state.ForecastHistory = append(state.ForecastHistory, snapshot)
	cutoff := timestamp.Add(-model.ForecastRetention)
	pruned := state.ForecastHistory[:0]
	for _, f := range state.ForecastHistory {
		if f.Timestamp.After(cutoff) {
			pruned = append(pruned, f)
		}
	}
	state.ForecastHistory = pruned
	state.LastForecast = &snapshot

	return snapshot, true
}

// GetMarketState returns a pointer to the live MarketState for id. The
// caller must not mutate it; it is shared with the store.
func (s *DataStore) GetMarketState(marketID string) (*model.MarketState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.markets[marketID]
	return state, ok
}

// GetAllMarkets returns a snapshot slice of every market's state.
func (s *DataStore) GetAllMarkets() []*model.MarketState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.MarketState, 0, len(s.markets))
	for _, state := range s.markets {
		out = append(out, state)
	}
	return out
}

// GetMarketIDByToken resolves a YES/NO token ID to its owning market.
func (s *DataStore) GetMarketIDByToken(tokenID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	marketID, ok := s.tokenToMarket[tokenID]
	return marketID, ok
}

// GetStats summarizes the store's current size.
func (s *DataStore) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{MarketCount: len(s.markets)}
	for _, state := range s.markets {
		stats.TotalPricePoints += len(state.YesHistory.Points) + len(state.NoHistory.Points)
		stats.TotalForecastSnapshots += len(state.ForecastHistory)
	}
	return stats
}
