// Package exchange defines MarketExchange, the opaque order-submission
// collaborator OrderExecutor depends on, plus two concrete adapters:
// SimulationExchange (in-memory fills, no network I/O) and LiveExchange
// (authenticated CLOB submission over HTTPS/websocket).
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

// OrderRequest is one order submission.
type OrderRequest struct {
	MarketID string
	TokenID  string
	Side     model.Side
	Price    decimal.Decimal
	Size     decimal.Decimal
}

// OrderResult is the outcome of a successful submission.
type OrderResult struct {
	OrderID      string
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.Decimal
}

// Position is one token's current holding, as reported by the exchange.
type Position struct {
	TokenID  string
	Size     decimal.Decimal
	AvgEntry decimal.Decimal
}

// MarketExchange is the opaque order-submission and position-query
// collaborator OrderExecutor depends on. Both SimulationExchange and
// LiveExchange implement it.
type MarketExchange interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPrice(ctx context.Context, tokenID string) (decimal.Decimal, error)
	GetPositions(ctx context.Context) ([]Position, error)
}
