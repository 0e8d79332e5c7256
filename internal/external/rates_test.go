package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRates struct {
	rates map[string]decimal.Decimal
	sets  int
}

func (m *memRates) GetRate(_ context.Context, currency string) (decimal.Decimal, bool, error) {
	r, ok := m.rates[currency]
	return r, ok, nil
}

func (m *memRates) SetRate(_ context.Context, currency string, rate decimal.Decimal, _ time.Duration) error {
	m.rates[currency] = rate
	m.sets++
	return nil
}

func TestCoinGecko_Rate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin-cash", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"bitcoin-cash":{"usd":412.37}}`))
	}))
	defer srv.Close()

	rate, err := NewCoinGecko(srv.URL, 0).Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("412.37")))
}

func TestCoinGecko_MissingCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin-cash":{}}`))
	}))
	defer srv.Close()

	_, err := NewCoinGecko(srv.URL, 0).Rate(context.Background(), "usd")
	assert.Error(t, err)
}

func TestRateClient_CachesLiveRate(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"bitcoin-cash":{"usd":250}}`))
	}))
	defer srv.Close()

	cache := &memRates{rates: map[string]decimal.Decimal{}}
	c := NewRateClient(RatesConfig{BaseURL: srv.URL, FallbackRate: "100", CacheTTL: time.Minute}, cache)

	for i := 0; i < 3; i++ {
		rate, err := c.Rate(context.Background(), "usd")
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(250)))
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.sets)
}

func TestRateClient_Fallback(t *testing.T) {
	live := StaticRates{}
	c := NewRateClientWithSource(live, StaticRates{PerBCH: decimal.NewFromInt(500)}, nil, 0)

	sats, rate, err := c.Quote(context.Background(), 1000, "usd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, int64(2_000_000), sats)
}

func TestRateClient_NoFallback(t *testing.T) {
	c := NewRateClientWithSource(failingSource{}, nil, nil, 0)
	_, _, err := c.Quote(context.Background(), 1000, "usd")
	assert.Error(t, err)
}

type failingSource struct{}

func (failingSource) Rate(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("down")
}

func TestCentsToSats(t *testing.T) {
	rate := decimal.NewFromInt(250)
	assert.Equal(t, int64(4_000_000), CentsToSats(1000, rate))
	assert.Equal(t, int64(3_600_000), CentsToSats(900, rate))
	// 1 cent at a huge rate still costs a sat
	assert.Equal(t, int64(1), CentsToSats(1, decimal.NewFromInt(100_000_000_000)))
	assert.Equal(t, int64(0), CentsToSats(0, rate))
	assert.Equal(t, int64(0), CentsToSats(100, decimal.Zero))
}
