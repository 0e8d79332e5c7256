package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

func NewClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}

// RateCache stores fiat-per-BCH exchange rates keyed by currency.
type RateCache struct {
	client redis.Cmdable
	prefix string
}

func NewRateCache(client redis.Cmdable) *RateCache {
	return &RateCache{client: client, prefix: "rates:bch:"}
}

func (c *RateCache) key(currency string) string {
	return c.prefix + currency
}

// GetRate returns the cached rate. A miss is reported with ok=false and no error.
func (c *RateCache) GetRate(ctx context.Context, currency string) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, c.key(currency)).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("rate cache lookup error: %w", err)
	}

	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid rate in cache: %w", err)
	}
	return rate, true, nil
}

func (c *RateCache) SetRate(ctx context.Context, currency string, rate decimal.Decimal, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(currency), rate.String(), ttl).Err(); err != nil {
		return fmt.Errorf("rate cache store error: %w", err)
	}
	return nil
}
