package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticketpay/internal/logger"
)

const SatsPerBCH = 100_000_000

type RatesConfig struct {
	BaseURL      string
	Currency     string
	FallbackRate string
	CacheTTL     time.Duration
	Timeout      time.Duration
}

// RateSource yields fiat units per whole BCH.
type RateSource interface {
	Rate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// RateStore is the optional cache in front of the live source.
type RateStore interface {
	GetRate(ctx context.Context, currency string) (decimal.Decimal, bool, error)
	SetRate(ctx context.Context, currency string, rate decimal.Decimal, ttl time.Duration) error
}

// CoinGecko reads spot prices from the simple/price endpoint.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
}

func NewCoinGecko(baseURL string, timeout time.Duration) *CoinGecko {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &CoinGecko{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *CoinGecko) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToLower(currency)
	q := url.Values{}
	q.Set("ids", "bitcoin-cash")
	q.Set("vs_currencies", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch BCH price: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API error %d: %s", resp.StatusCode, string(data))
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(data, &body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price: %w", err)
	}
	rate, ok := body["bitcoin-cash"][currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("no BCH price for %s", currency)
	}
	return rate, nil
}

// StaticRates is a fixed rate, used as the fallback and in tests.
type StaticRates struct {
	PerBCH decimal.Decimal
}

func (s StaticRates) Rate(context.Context, string) (decimal.Decimal, error) {
	if !s.PerBCH.IsPositive() {
		return decimal.Zero, fmt.Errorf("static rate is not configured")
	}
	return s.PerBCH, nil
}

// RateClient converts fiat cents into satoshi. It consults the cache, then the live
// source, then the fallback.
type RateClient struct {
	source   RateSource
	fallback RateSource
	cache    RateStore
	ttl      time.Duration
}

func NewRateClient(cfg RatesConfig, cache RateStore) *RateClient {
	var fallback RateSource
	if rate, err := decimal.NewFromString(cfg.FallbackRate); err == nil {
		fallback = StaticRates{PerBCH: rate}
	}
	return &RateClient{
		source:   NewCoinGecko(cfg.BaseURL, cfg.Timeout),
		fallback: fallback,
		cache:    cache,
		ttl:      cfg.CacheTTL,
	}
}

// NewRateClientWithSource is NewRateClient over an arbitrary live source.
func NewRateClientWithSource(source, fallback RateSource, cache RateStore, ttl time.Duration) *RateClient {
	return &RateClient{source: source, fallback: fallback, cache: cache, ttl: ttl}
}

func (c *RateClient) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToLower(currency)
	log := logger.WithContext(ctx)

	if c.cache != nil {
		rate, ok, err := c.cache.GetRate(ctx, currency)
		if err != nil {
			log.Warn("Rate cache lookup failed", "currency", currency, "error", err)
		} else if ok {
			return rate, nil
		}
	}

	rate, err := c.source.Rate(ctx, currency)
	if err == nil {
		if c.cache != nil {
			if err := c.cache.SetRate(ctx, currency, rate, c.ttl); err != nil {
				log.Warn("Rate cache store failed", "currency", currency, "error", err)
			}
		}
		return rate, nil
	}

	if c.fallback == nil {
		return decimal.Zero, err
	}
	log.Warn("Live BCH price unavailable, using fallback", "currency", currency, "error", err)
	return c.fallback.Rate(ctx, currency)
}

// Quote converts cents to satoshi at the current rate, rounded, never below 1 sat.
func (c *RateClient) Quote(ctx context.Context, cents int64, currency string) (int64, decimal.Decimal, error) {
	rate, err := c.Rate(ctx, currency)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return CentsToSats(cents, rate), rate, nil
}

// CentsToSats converts fiat cents at rate (fiat per BCH) into satoshi.
func CentsToSats(cents int64, rate decimal.Decimal) int64 {
	if cents <= 0 || !rate.IsPositive() {
		return 0
	}
	sats := decimal.NewFromInt(cents).
		Div(decimal.NewFromInt(100)).
		Div(rate).
		Mul(decimal.NewFromInt(SatsPerBCH)).
		Round(0).
		IntPart()
	if sats < 1 {
		return 1
	}
	return sats
}
