package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/weatheredge/nwp-signal-engine/internal/exchange/auth"
)

// orderTTL bounds how long a signed order remains valid on-chain once
// submitted; the exchange rejects anything expired by the time it's
// mined.
const orderTTL = 2 * time.Minute

// LiveConfig is LiveExchange's connection and credential configuration.
type LiveConfig struct {
	BaseURL    string
	WSURL      string
	ChainID    int64
	WalletKey  string
	APIKey     string
	APISecret  string
	Passphrase string
	// NegRisk selects the neg-risk exchange contract for markets whose
	// outcome group has more than two mutually exclusive buckets.
	NegRisk bool
}

// LiveExchange submits orders to the real CLOB REST API, authenticated
// with EIP-712 order signing (L1) and HMAC request signing (L2), and
// streams price updates over a websocket connection.
type LiveExchange struct {
	cfg    LiveConfig
	logger *zap.Logger

	httpClient *http.Client
	wallet     *auth.Wallet
	eip712     *auth.EIP712Signer
	hmac       *auth.HMACSigner

	conn *websocket.Conn
}

// NewLiveExchange constructs a LiveExchange from cfg. The wallet key
// must be a hex-encoded ECDSA private key.
func NewLiveExchange(cfg LiveConfig, logger *zap.Logger) (*LiveExchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wallet, err := auth.NewWallet(cfg.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("live exchange: %w", err)
	}
	creds := &auth.APICredentials{APIKey: cfg.APIKey, Secret: cfg.APISecret, Passphrase: cfg.Passphrase}
	return &LiveExchange{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		wallet:     wallet,
		eip712:     auth.NewEIP712Signer(wallet),
		hmac:       auth.NewHMACSigner(creds),
	}, nil
}

type submitOrderBody struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

type submitOrderResponse struct {
	OrderID      string `json:"order_id"`
	FilledSize   string `json:"filled_size"`
	AvgFillPrice string `json:"avg_fill_price"`
}

// SubmitOrder signs req with both the L1 EIP-712 order signature and
// the L2 HMAC request signature, and posts it to the order endpoint.
// The outcome side (YES or NO) is already encoded in which TokenID is
// submitted, so the on-chain order itself is always a BUY — this
// exchange never constructs a sell/exit order.
func (e *LiveExchange) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok {
		return OrderResult{}, fmt.Errorf("live exchange: token id %q is not a valid integer", req.TokenID)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := big.NewInt(time.Now().UnixNano())
	expiration := big.NewInt(time.Now().Add(orderTTL).Unix())

	order := auth.NewBuyOrder(e.wallet.Address(), tokenID, req.Price, req.Size, expiration, nonce)
	orderSig, err := e.eip712.SignOrder(e.cfg.ChainID, auth.ContractAddress(e.cfg.NegRisk), order)
	if err != nil {
		return OrderResult{}, fmt.Errorf("live exchange: sign order: %w", err)
	}

	body := submitOrderBody{
		TokenID: req.TokenID,
		Side:    string(req.Side),
		Price:   req.Price.String(),
		Size:    req.Size.String(),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return OrderResult{}, fmt.Errorf("live exchange: marshal order: %w", err)
	}

	const path = "/order"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return OrderResult{}, fmt.Errorf("live exchange: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	headers, err := e.hmac.SignRequest(timestamp, http.MethodPost, path, payload, e.wallet.AddressHex())
	if err != nil {
		return OrderResult{}, fmt.Errorf("live exchange: sign request: %w", err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range auth.L1AuthHeaders(e.wallet.AddressHex(), orderSig, timestamp, nonce.Int64()) {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return OrderResult{}, fmt.Errorf("live exchange: submit order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return OrderResult{}, fmt.Errorf("live exchange: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return OrderResult{}, fmt.Errorf("live exchange: order rejected (%d): %s", resp.StatusCode, raw)
	}

	var parsed submitOrderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return OrderResult{}, fmt.Errorf("live exchange: parse response: %w", err)
	}

	filled, _ := decimal.NewFromString(parsed.FilledSize)
	avgPrice, _ := decimal.NewFromString(parsed.AvgFillPrice)
	return OrderResult{OrderID: parsed.OrderID, FilledSize: filled, AvgFillPrice: avgPrice}, nil
}

type priceResponse struct {
	Price string `json:"price"`
}

// GetPrice fetches the current midpoint price for tokenID.
func (e *LiveExchange) GetPrice(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/midpoint?token_id=%s", e.cfg.BaseURL, tokenID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("live exchange: build price request: %w", err)
	}
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return decimal.Zero, fmt.Errorf("live exchange: fetch price: %w", err)
	}
	defer resp.Body.Close()

	var parsed priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("live exchange: parse price: %w", err)
	}
	return decimal.NewFromString(parsed.Price)
}

type positionsResponse struct {
	Positions []struct {
		TokenID  string `json:"token_id"`
		Size     string `json:"size"`
		AvgEntry string `json:"avg_entry"`
	} `json:"positions"`
}

// GetPositions fetches the account's current token positions.
func (e *LiveExchange) GetPositions(ctx context.Context) ([]Position, error) {
	url := e.cfg.BaseURL + "/positions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("live exchange: build positions request: %w", err)
	}
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("live exchange: fetch positions: %w", err)
	}
	defer resp.Body.Close()

	var parsed positionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("live exchange: parse positions: %w", err)
	}

	out := make([]Position, 0, len(parsed.Positions))
	for _, p := range parsed.Positions {
		size, _ := decimal.NewFromString(p.Size)
		avg, _ := decimal.NewFromString(p.AvgEntry)
		out = append(out, Position{TokenID: p.TokenID, Size: size, AvgEntry: avg})
	}
	return out, nil
}

// StreamPrices connects to the exchange websocket feed and invokes onPrice
// for every price update received, until ctx is canceled or the
// connection drops.
func (e *LiveExchange) StreamPrices(ctx context.Context, tokenIDs []string, onPrice func(tokenID string, price decimal.Decimal)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("live exchange: dial websocket: %w", err)
	}
	e.conn = conn
	defer conn.Close()

	sub := map[string]any{"type": "subscribe", "assets_ids": tokenIDs}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("live exchange: subscribe: %w", err)
	}

	type tick struct {
		AssetID string `json:"asset_id"`
		Price   string `json:"price"`
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var t tick
		if err := conn.ReadJSON(&t); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("live exchange: read price tick: %w", err)
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			e.logger.Warn("live exchange: malformed price tick", zap.String("raw", t.Price))
			continue
		}
		onPrice(t.AssetID, price)
	}
}

var _ MarketExchange = (*LiveExchange)(nil)
