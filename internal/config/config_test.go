package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BCH_DISCOUNT_PERCENT", "")
	t.Setenv("CHECKOUT_HOLD_WINDOW", "")

	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.Checkout.HoldWindow)
	assert.Equal(t, 10.0, cfg.Checkout.BCHDiscountPercent)
	assert.Equal(t, 5.0, cfg.Checkout.CashbackPercent)
	assert.Equal(t, 5, cfg.Checkout.AllocationMaxAttempts)
	assert.Equal(t, "250", cfg.Rates.FallbackRate)
	assert.Equal(t, "tickets", cfg.Elasticsearch.Index)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BCH_DISCOUNT_PERCENT", "12.5")
	t.Setenv("CHECKOUT_HOLD_WINDOW", "90s")
	t.Setenv("CASHBACK_AUTO_FUND", "true")
	t.Setenv("FUNDING_INDEX", "3")
	t.Setenv("RATES_CURRENCY", "EUR")

	cfg := Load()

	assert.Equal(t, 12.5, cfg.Checkout.BCHDiscountPercent)
	assert.Equal(t, 90*time.Second, cfg.Checkout.HoldWindow)
	assert.True(t, cfg.Jobs.CashbackAutoFund)
	assert.Equal(t, uint32(3), cfg.Wallet.FundingIndex)
	assert.Equal(t, "eur", cfg.Rates.Currency)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("VERIFY_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 30*time.Second, cfg.Jobs.VerifyInterval)
}
