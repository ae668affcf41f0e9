package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"PerpScope/internal/domain/models"
	"PerpScope/pkg/cache"
	pkghttp "PerpScope/pkg/http"
	applogger "PerpScope/pkg/logger"
)

// Client fetches live futures market data from the Binance fapi REST API.
// When a proxy URL is configured, every request is relayed through it with
// the target endpoint passed as a query parameter; callers never see the
// difference.
type Client struct {
	httpClient  *pkghttp.Client
	baseURL     string
	proxyURL    string
	interval    string
	klineLimit  int
	quoteSuffix string
	limiter     *rate.Limiter
	maxRetry    time.Duration
	cacheTTL    time.Duration
	cache       cache.Service
	l           *applogger.Logger
}

// Option configures the client.
type Option func(*Client)

func WithProxy(proxyURL string) Option {
	return func(c *Client) { c.proxyURL = proxyURL }
}

func WithBarInterval(interval string) Option {
	return func(c *Client) { c.interval = interval }
}

func WithKlineLimit(limit int) Option {
	return func(c *Client) { c.klineLimit = limit }
}

func WithQuoteSuffix(suffix string) Option {
	return func(c *Client) { c.quoteSuffix = suffix }
}

func WithRateLimit(requestsPerSec int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec)
	}
}

func WithMaxRetryTime(d time.Duration) Option {
	return func(c *Client) { c.maxRetry = d }
}

// WithKlineCache caches kline responses so back-to-back refreshes within the
// TTL do not hammer the exchange.
func WithKlineCache(svc cache.Service, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = svc
		c.cacheTTL = ttl
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.l = l }
}

// New creates a futures market-data client.
func New(httpClient *pkghttp.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		interval:    "30m",
		klineLimit:  50,
		quoteSuffix: "USDT",
		limiter:     rate.NewLimiter(rate.Limit(8), 8),
		maxRetry:    15 * time.Second,
		l:           applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Prices returns the last price of every perpetual quoted in the configured
// suffix. One batch call for the whole universe.
func (c *Client) Prices(ctx context.Context) (map[string]float64, error) {
	var tickers []tickerPrice
	if err := c.get(ctx, "/fapi/v1/ticker/price", nil, &tickers); err != nil {
		return nil, fmt.Errorf("fetch ticker prices: %w", err)
	}

	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, c.quoteSuffix) {
			continue
		}
		p, err := strconv.ParseFloat(t.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		out[t.Symbol] = p
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ticker prices: empty universe for suffix %q", c.quoteSuffix)
	}
	c.l.Debug("fetched ticker prices", applogger.Int("markets", len(out)))
	return out, nil
}

// Klines returns up to limit recent bars for one symbol, oldest first.
func (c *Client) Klines(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		limit = c.klineLimit
	}

	cacheKey := fmt.Sprintf("klines:%s:%s:%d", symbol, c.interval, limit)
	if c.cache != nil {
		var cached []models.Bar
		if err := c.cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	params := map[string][]string{
		"symbol":   {symbol},
		"interval": {c.interval},
		"limit":    {strconv.Itoa(limit)},
	}
	var raw []json.RawMessage
	if err := c.get(ctx, "/fapi/v1/klines", params, &raw); err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}

	bars, err := ParseKlines(raw)
	if err != nil {
		return nil, fmt.Errorf("parse klines %s: %w", symbol, err)
	}

	if c.cache != nil && len(bars) > 0 {
		if err := c.cache.Set(ctx, cacheKey, bars, c.cacheTTL); err != nil {
			c.l.Warn("kline cache set failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return bars, nil
}

// ParseKlines decodes the fapi kline array-of-arrays payload. Each element is
// [openTime, open, high, low, close, volume, closeTime, quoteVol, trades,
// takerBuyBase, takerBuyQuote, ignore].
func ParseKlines(raw []json.RawMessage) ([]models.Bar, error) {
	bars := make([]models.Bar, 0, len(raw))
	for i, row := range raw {
		var fields []json.RawMessage
		if err := json.Unmarshal(row, &fields); err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		if len(fields) < 10 {
			return nil, fmt.Errorf("kline %d: %d fields", i, len(fields))
		}

		var openMs int64
		if err := json.Unmarshal(fields[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}

		bar := models.Bar{OpenTime: time.UnixMilli(openMs).UTC()}
		for _, f := range []struct {
			idx  int
			dest *float64
		}{
			{1, &bar.Open},
			{2, &bar.High},
			{3, &bar.Low},
			{4, &bar.Close},
			{5, &bar.Volume},
			{9, &bar.TakerBuyVolume},
		} {
			v, err := klineFloat(fields[f.idx])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, f.idx, err)
			}
			*f.dest = v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func klineFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// fapi emits numeric fields as strings, but tolerate bare numbers
		var f float64
		if err2 := json.Unmarshal(raw, &f); err2 != nil {
			return 0, err
		}
		return f, nil
	}
	return strconv.ParseFloat(s, 64)
}

// get performs a rate-limited GET with bounded retries. Through a proxy the
// endpoint travels as a query parameter and the symbol parameters are merged
// into the relay's query string.
func (c *Client) get(ctx context.Context, endpoint string, params map[string][]string, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + endpoint
	query := params
	if c.proxyURL != "" {
		reqURL = c.proxyURL
		query = map[string][]string{"endpoint": {endpoint}}
		for k, v := range params {
			query[k] = v
		}
	}

	op := func() error {
		return c.httpClient.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method:      pkghttp.MethodGet,
			URL:         reqURL,
			QueryParams: query,
		}, dest)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxRetry
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
