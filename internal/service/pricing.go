package service

import (
	"time"

	"github.com/shopspring/decimal"

	"ticketpay/internal/models"
)

var hundred = decimal.NewFromInt(100)

// UnitPrice is the early-bird price while the early-bird window is open, else the base price.
func UnitPrice(tt *models.TicketType, now time.Time) int64 {
	if tt.IsEarlyBird &&
		tt.EarlyBirdPriceCents != nil && *tt.EarlyBirdPriceCents > 0 &&
		tt.EarlyBirdEndsAt != nil && now.Before(*tt.EarlyBirdEndsAt) {
		return *tt.EarlyBirdPriceCents
	}
	return tt.PriceCents
}

// PercentOf returns round(amount * percent / 100), half away from zero.
func PercentOf(amount int64, percent float64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(percent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// BCHDiscount is the discount granted on a BCH-discounted ticket type.
func BCHDiscount(baseCents int64, percent float64) int64 {
	d := PercentOf(baseCents, percent)
	if d > baseCents {
		return baseCents
	}
	return d
}

// CashbackReward is never below one satoshi once there is anything to reward.
func CashbackReward(paymentSats int64, percent float64) int64 {
	if paymentSats <= 0 || percent <= 0 {
		return 0
	}
	if r := PercentOf(paymentSats, percent); r > 1 {
		return r
	}
	return 1
}
