package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ticketpay/internal/models"
)

func TestBCHDiscountOnTenThousandCents(t *testing.T) {
	discount := BCHDiscount(10000, 10)
	assert.Equal(t, int64(1000), discount)
	assert.Equal(t, int64(9000), 10000-discount)
}

func TestPercentOfRounding(t *testing.T) {
	tests := []struct {
		amount  int64
		percent float64
		want    int64
	}{
		{5, 10, 1},
		{15, 10, 2},
		{14, 10, 1},
		{999, 12.5, 125},
		{0, 10, 0},
		{100, 0, 0},
		{100, -5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentOf(tt.amount, tt.percent), "%d at %v%%", tt.amount, tt.percent)
	}
}

func TestBCHDiscountNeverExceedsBase(t *testing.T) {
	assert.Equal(t, int64(500), BCHDiscount(500, 150))
}

func TestCashbackReward(t *testing.T) {
	assert.Equal(t, int64(225000), CashbackReward(22500000, 1))
	assert.Equal(t, int64(1), CashbackReward(10, 1))
	assert.Equal(t, int64(1), CashbackReward(1, 0.5))
	assert.Equal(t, int64(0), CashbackReward(0, 1))
	assert.Equal(t, int64(0), CashbackReward(1000, 0))
}

func TestUnitPriceEarlyBirdBoundary(t *testing.T) {
	ends := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	early := int64(7500)
	tt := &models.TicketType{
		PriceCents:          10000,
		IsEarlyBird:         true,
		EarlyBirdPriceCents: &early,
		EarlyBirdEndsAt:     &ends,
	}

	assert.Equal(t, int64(7500), UnitPrice(tt, ends.Add(-time.Nanosecond)))
	assert.Equal(t, int64(10000), UnitPrice(tt, ends))
	assert.Equal(t, int64(10000), UnitPrice(tt, ends.Add(time.Hour)))

	tt.IsEarlyBird = false
	assert.Equal(t, int64(10000), UnitPrice(tt, ends.Add(-time.Hour)))

	tt.IsEarlyBird = true
	zero := int64(0)
	tt.EarlyBirdPriceCents = &zero
	assert.Equal(t, int64(10000), UnitPrice(tt, ends.Add(-time.Hour)))

	tt.EarlyBirdPriceCents = &early
	tt.EarlyBirdEndsAt = nil
	assert.Equal(t, int64(10000), UnitPrice(tt, ends.Add(-time.Hour)))
}
