// Package discovery populates a DataStore with real Market entities at
// startup instead of requiring them to be hand-constructed, adapting
// pkg/polymarket/gamma/client.go's paginated market listing into a
// one-shot discovery pass over Gamma-style market metadata.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/weatheredge/nwp-signal-engine/internal/grib"
	"github.com/weatheredge/nwp-signal-engine/internal/model"
)

// DefaultBaseURL is the Gamma API base URL.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

const (
	defaultRateLimit = 10.0
	defaultBurst     = 5
	pageLimit        = 100
)

// gammaMarket is the subset of Gamma's market schema the parser needs.
// ClobTokenIds/Outcomes/OutcomePrices arrive JSON-encoded as strings, the
// same double-encoding the upstream API uses.
type gammaMarket struct {
	ID               string `json:"id"`
	Question         string `json:"question"`
	ConditionID      string `json:"conditionId"`
	Active           bool   `json:"active"`
	Closed           bool   `json:"closed"`
	AcceptingOrders  bool   `json:"acceptingOrders"`
	EndDateISO       string `json:"endDate"`
	ClobTokenIDsRaw  string `json:"clobTokenIds"`
	OutcomePricesRaw string `json:"outcomePrices"`
}

func (m gammaMarket) clobTokenIDs() []string {
	var ids []string
	if m.ClobTokenIDsRaw != "" {
		json.Unmarshal([]byte(m.ClobTokenIDsRaw), &ids)
	}
	return ids
}

func (m gammaMarket) outcomePrices() []decimal.Decimal {
	var raw []string
	if m.OutcomePricesRaw != "" {
		json.Unmarshal([]byte(m.OutcomePricesRaw), &raw)
	}
	prices := make([]decimal.Decimal, 0, len(raw))
	for _, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			d = decimal.Zero
		}
		prices = append(prices, d)
	}
	return prices
}

func (m gammaMarket) tradeable() bool {
	return m.Active && !m.Closed && m.AcceptingOrders
}

// Client fetches tradeable market metadata from a Gamma-style API, pooled
// and rate-limited the same way pkg/polymarket/gamma/client.go's does.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, primarily for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient builds a Client against DefaultBaseURL unless overridden.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listTradeableMarkets fetches one page of active, not-closed markets.
func (c *Client) listTradeableMarkets(ctx context.Context, limit, offset int) ([]gammaMarket, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var markets []gammaMarket
	if err := c.get(ctx, "/markets", params, &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// ListAllTradeableMarkets pages through every tradeable market.
func (c *Client) ListAllTradeableMarkets(ctx context.Context) ([]gammaMarket, error) {
	var all []gammaMarket
	offset := 0
	for {
		page, err := c.listTradeableMarkets(ctx, pageLimit, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageLimit {
			return all, nil
		}
		offset += pageLimit
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("discovery: rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("discovery: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discovery: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discovery: api error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("discovery: decode response: %w", err)
	}
	return nil
}

// SkippedMarket records a Gamma market that did not parse into a
// structured weather threshold, and why.
type SkippedMarket struct {
	ConditionID string
	Question    string
	Reason      string
}

// Discover fetches every tradeable market and parses the ones that name a
// known city and a recognizable threshold question into model.Market.
// Markets the parser can't place (wrong city, no numeric threshold, no
// two-sided token pair) are returned separately rather than dropped
// silently.
func Discover(ctx context.Context, client *Client) ([]model.Market, []SkippedMarket, error) {
	raw, err := client.ListAllTradeableMarkets(ctx)
	if err != nil {
		return nil, nil, err
	}

	markets := make([]model.Market, 0, len(raw))
	skipped := make([]SkippedMarket, 0)
	for _, gm := range raw {
		if !gm.tradeable() {
			continue
		}
		market, reason := parseMarket(gm)
		if reason != "" {
			skipped = append(skipped, SkippedMarket{ConditionID: gm.ConditionID, Question: gm.Question, Reason: reason})
			continue
		}
		markets = append(markets, market)
	}
	return markets, skipped, nil
}

// parseMarket maps one Gamma market's question text and token pair into a
// structured Market. This is a small explicit tokenizer, not a
// regex-heuristic pass: the question text format is narrow enough
// (weather-threshold questions follow a handful of fixed phrasings) that
// scanning for known words is clearer than an over-general pattern.
func parseMarket(gm gammaMarket) (model.Market, string) {
	tokens := gm.clobTokenIDs()
	if len(tokens) != 2 {
		return model.Market{}, "expected exactly two CLOB token ids"
	}
	prices := gm.outcomePrices()
	if len(prices) != 2 {
		return model.Market{}, "expected exactly two outcome prices"
	}

	lower := strings.ToLower(gm.Question)
	cleaner := strings.NewReplacer(",", " ", "?", " ", "°", " ", "'s", " ", "'", " ", ".", " ", ":", " ", "!", " ")
	words := strings.Fields(cleaner.Replace(lower))

	city, ok := matchCity(words)
	if !ok {
		return model.Market{}, "no recognized city in question text"
	}

	metric := matchMetric(words)
	comparison := matchComparison(words)
	threshold, unit, ok := matchThreshold(words, metric)
	if !ok {
		return model.Market{}, "no numeric threshold found in question text"
	}
	if unit == model.UnitCelsius {
		threshold = threshold*9/5 + 32
	}

	targetDate, err := time.Parse("2006-01-02", strings.SplitN(gm.EndDateISO, "T", 2)[0])
	if err != nil {
		targetDate = time.Now().Add(24 * time.Hour)
	}

	return model.Market{
		MarketID:   gm.ConditionID,
		City:       city,
		MetricType: metric,
		Comparison: comparison,
		Threshold:  threshold,
		Unit:       unit,
		TargetDate: targetDate,
		YesTokenID: tokens[0],
		NoTokenID:  tokens[1],
		Active:     gm.Active,
		Closed:     gm.Closed,
		YesPrice:   prices[0],
		NoPrice:    prices[1],
	}, ""
}

func matchCity(words []string) (string, bool) {
	for _, c := range grib.Cities {
		name := strings.ReplaceAll(c.ID, "_", " ")
		parts := strings.Fields(name)
		if containsSequence(words, parts) {
			return c.ID, true
		}
	}
	return "", false
}

func containsSequence(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j, s := range seq {
			if words[i+j] != s {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// containsWord reports whether any token contains substr, for keywords
// that show up inflected or compounded ("snowfall", "precipitation").
func containsWord(words []string, substr string) bool {
	for _, w := range words {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func matchMetric(words []string) model.MetricType {
	switch {
	case containsWord(words, "snow"):
		return model.MetricSnowfall
	case containsWord(words, "rain"), containsWord(words, "precip"):
		return model.MetricPrecipitation
	case containsSequence(words, []string{"between"}):
		return model.MetricTempRange
	case containsWord(words, "high"):
		return model.MetricTempHigh
	case containsWord(words, "low"):
		return model.MetricTempLow
	default:
		return model.MetricTempThreshold
	}
}

func matchComparison(words []string) model.Comparison {
	switch {
	case containsSequence(words, []string{"between"}):
		return model.ComparisonRange
	case containsWord(words, "above"), containsWord(words, "over"), containsWord(words, "exceed"),
		containsSequence(words, []string{"more", "than"}), containsSequence(words, []string{"higher", "than"}):
		return model.ComparisonAbove
	case containsWord(words, "below"), containsWord(words, "under"),
		containsSequence(words, []string{"less", "than"}), containsSequence(words, []string{"lower", "than"}):
		return model.ComparisonBelow
	default:
		return model.ComparisonAbove
	}
}

func matchThreshold(words []string, metric model.MetricType) (float64, model.Unit, bool) {
	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !(r >= '0' && r <= '9') && r != '.' && r != '-'
		})
		if trimmed == "" {
			continue
		}
		value, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			continue
		}

		unit := defaultUnit(metric)
		if i+1 < len(words) {
			switch words[i+1] {
			case "f", "fahrenheit":
				unit = model.UnitFahrenheit
			case "c", "celsius":
				unit = model.UnitCelsius
			case "in", "inches":
				unit = model.UnitInches
			case "mm", "millimeters":
				unit = model.UnitMM
			}
		}
		return value, unit, true
	}
	return 0, "", false
}

func defaultUnit(metric model.MetricType) model.Unit {
	switch metric {
	case model.MetricPrecipitation, model.MetricSnowfall:
		return model.UnitInches
	default:
		return model.UnitFahrenheit
	}
}
