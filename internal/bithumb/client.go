// Package bithumb is the typed exchange client: public market-data
// endpoints plus signed private endpoints (balance, market buy/sell)
// against the Bithumb REST API, with shared rate limiting, retry/backoff,
// and request signing.
package bithumb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"bithumbot/internal/model"
)

// Interval is a supported candlestick resolution.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval10m Interval = "10m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval6h  Interval = "6h"
	Interval12h Interval = "12h"
	Interval24h Interval = "24h"
)

// ExchangeError is the typed result of a documented Bithumb error response.
type ExchangeError struct {
	Code    string
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("bithumb error %s: %s", e.Code, e.Message)
}

// nonRetryableCodes are auth/signature/nonce/permission failures that are
// fatal to the cycle rather than transient.
var nonRetryableCodes = map[string]bool{
	"5100": true,
	"5200": true,
	"5300": true,
	"5600": true,
}

// Retryable reports whether the backoff loop should retry this error.
func (e *ExchangeError) Retryable() bool { return !nonRetryableCodes[e.Code] }

// Ticker24h is the public 24h ticker snapshot.
type Ticker24h struct {
	Price            float64
	OpenPrice        float64
	ClosePrice       float64
	MinPrice         float64
	MaxPrice         float64
	UnitsTraded      float64
	FluctuateRate24H float64
}

// OrderAck is the acknowledgment returned by a successful order call.
type OrderAck struct {
	OrderID string
}

// Client is the typed exchange client: public market data plus signed
// private endpoints, gated by a shared rate limiter and retried with
// exponential backoff.
type Client struct {
	http         *resty.Client
	auth         *Auth
	limiter      *TokenBucket
	dryRun       bool
	callDeadline time.Duration
	maxAttempts  int
}

// Config configures Client construction.
type Config struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	DryRun       bool
	CallDeadline time.Duration // default 15s
	Limiter      *TokenBucket  // default: 20 req/60s bucket
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	deadline := cfg.CallDeadline
	if deadline <= 0 {
		deadline = 15 * time.Second
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewDefaultLimiter()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.bithumb.com"
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(deadline)

	return &Client{
		http:         httpClient,
		auth:         NewAuth(cfg.APIKey, cfg.SecretKey),
		limiter:      limiter,
		dryRun:       cfg.DryRun,
		callDeadline: deadline,
		maxAttempts:  3,
	}
}

// publicTickerResponse mirrors Bithumb's GET /public/ticker/{coin}_KRW
// payload shape, with tolerant string-or-number numeric fields.
type publicTickerResponse struct {
	Status string `json:"status"`
	Data   struct {
		OpeningPrice     flexFloat `json:"opening_price"`
		ClosingPrice     flexFloat `json:"closing_price"`
		MinPrice         flexFloat `json:"min_price"`
		MaxPrice         flexFloat `json:"max_price"`
		UnitsTraded24H   flexFloat `json:"units_traded_24H"`
		FluctuateRate24H flexFloat `json:"fluctate_rate_24H"`
	} `json:"data"`
}

// GetTicker fetches the current price and 24h stats for coin.
func (c *Client) GetTicker(ctx context.Context, coin string) (price float64, stats Ticker24h, err error) {
	if err = c.limiter.Wait(ctx); err != nil {
		return 0, Ticker24h{}, err
	}
	var out publicTickerResponse
	callErr := withRetry(ctx, c.maxAttempts, func() error {
		resp, e := c.http.R().SetContext(ctx).SetResult(&out).Get("/public/ticker/" + coin + "_KRW")
		return classifyRESTError(resp, e)
	})
	if callErr != nil {
		return 0, Ticker24h{}, callErr
	}
	stats = Ticker24h{
		Price:            out.Data.ClosingPrice.Float(),
		OpenPrice:        out.Data.OpeningPrice.Float(),
		ClosePrice:       out.Data.ClosingPrice.Float(),
		MinPrice:         out.Data.MinPrice.Float(),
		MaxPrice:         out.Data.MaxPrice.Float(),
		UnitsTraded:      out.Data.UnitsTraded24H.Float(),
		FluctuateRate24H: out.Data.FluctuateRate24H.Float(),
	}
	return stats.ClosePrice, stats, nil
}

// candlestickResponse mirrors Bithumb's candlestick payload: each row is
// [timestamp_ms, open, close, high, low, volume], all as strings.
type candlestickResponse struct {
	Status string     `json:"status"`
	Data   [][]string `json:"data"`
}

// GetCandles fetches up to limit closed candles for coin at interval,
// coerced into the Indicator-expected Bar schema (open, high, low, close,
// volume, all numeric) in timestamp-ascending order.
func (c *Client) GetCandles(ctx context.Context, coin string, interval Interval, limit int) ([]model.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out candlestickResponse
	callErr := withRetry(ctx, c.maxAttempts, func() error {
		resp, e := c.http.R().SetContext(ctx).SetResult(&out).
			Get("/public/candlestick/" + coin + "_KRW/" + string(interval))
		return classifyRESTError(resp, e)
	})
	if callErr != nil {
		return nil, callErr
	}

	bars := make([]model.Bar, 0, len(out.Data))
	for _, row := range out.Data {
		if len(row) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		open, _ := strconv.ParseFloat(row[1], 64)
		closeP, _ := strconv.ParseFloat(row[2], 64)
		high, _ := strconv.ParseFloat(row[3], 64)
		low, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)
		bars = append(bars, model.Bar{
			Timestamp: time.UnixMilli(ts),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    volume,
		})
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// balanceResponse mirrors POST /info/balance.
type balanceResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data"`
}

// GetBalance fetches available/in-use balances for coin, or "ALL".
func (c *Client) GetBalance(ctx context.Context, coin string) (map[string]float64, error) {
	if c.dryRun {
		return map[string]float64{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	currency := coin
	if currency == "" {
		currency = "ALL"
	}
	var out balanceResponse
	callErr := withRetry(ctx, c.maxAttempts, func() error {
		headers, body := c.auth.SignedHeaders("/info/balance", map[string]string{"currency": currency})
		resp, e := c.http.R().SetContext(ctx).SetHeaders(headers).SetFormDataFromValues(body).
			SetResult(&out).Post("/info/balance")
		if err := classifyRESTError(resp, e); err != nil {
			return err
		}
		if out.Status != "0000" {
			return &ExchangeError{Code: out.Status, Message: out.Message}
		}
		return nil
	})
	if callErr != nil {
		return nil, callErr
	}
	result := make(map[string]float64, len(out.Data))
	for k, v := range out.Data {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			result[k] = f
		}
	}
	return result, nil
}

type orderResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	OrderID   string `json:"order_id"`
}

// MarketBuy places a market buy for krwAmount KRW of coin. In dry-run mode
// no private endpoint is called and the ack carries order_id "DRY_RUN".
func (c *Client) MarketBuy(ctx context.Context, coin string, krwAmount float64) (OrderAck, error) {
	return c.marketOrder(ctx, "/trade/market_buy", coin, strconv.FormatFloat(krwAmount, 'f', -1, 64))
}

// MarketSell places a market sell for qty units of coin.
func (c *Client) MarketSell(ctx context.Context, coin string, qty float64) (OrderAck, error) {
	return c.marketOrder(ctx, "/trade/market_sell", coin, strconv.FormatFloat(qty, 'f', -1, 64))
}

func (c *Client) marketOrder(ctx context.Context, endpoint, coin, units string) (OrderAck, error) {
	if c.dryRun {
		return OrderAck{OrderID: "DRY_RUN"}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return OrderAck{}, err
	}
	var out orderResponse
	callErr := withRetry(ctx, c.maxAttempts, func() error {
		headers, body := c.auth.SignedHeaders(endpoint, map[string]string{
			"order_currency":   coin,
			"payment_currency": "KRW",
			"units":            units,
		})
		resp, e := c.http.R().SetContext(ctx).SetHeaders(headers).SetFormDataFromValues(body).
			SetResult(&out).Post(endpoint)
		if err := classifyRESTError(resp, e); err != nil {
			return err
		}
		if out.Status != "0000" {
			return &ExchangeError{Code: out.Status, Message: out.Message}
		}
		return nil
	})
	if callErr != nil {
		return OrderAck{}, callErr
	}
	return OrderAck{OrderID: out.OrderID}, nil
}

// classifyRESTError turns a transport error or a non-2xx resty response
// into an error the retry loop can inspect. Bithumb's documented error
// envelopes arrive with HTTP 200 and a non-"0000" status, so non-2xx
// transport-level failures here are always transient (network/5xx).
func classifyRESTError(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp != nil && resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// flexFloat unmarshals from either a JSON string or number.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func (f flexFloat) Float() float64 { return float64(f) }
