package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckoutSessionTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		allowed  bool
	}{
		{SessionStarted, SessionAwaitingPayment, true},
		{SessionStarted, SessionCompleted, true},
		{SessionAwaitingPayment, SessionAwaitingPayment, true},
		{SessionAwaitingPayment, SessionCompleted, true},
		{SessionAwaitingPayment, SessionStarted, false},
		{SessionCompleted, SessionAwaitingPayment, false},
		{SessionCompleted, SessionStarted, false},
		{SessionCompleted, SessionCompleted, true},
		{SessionStarted, SessionExpired, false},
	}

	for _, tt := range tests {
		s := &CheckoutSession{Status: tt.from}
		assert.Equal(t, tt.allowed, s.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCheckoutSessionExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &CheckoutSession{Status: SessionAwaitingPayment, ExpiresAt: now.Add(10 * time.Minute)}

	assert.Equal(t, SessionAwaitingPayment, s.EffectiveStatus(now))
	assert.Equal(t, SessionAwaitingPayment, s.EffectiveStatus(now.Add(10*time.Minute)))
	assert.Equal(t, SessionExpired, s.EffectiveStatus(now.Add(11*time.Minute)))

	s.Status = SessionCompleted
	assert.False(t, s.IsExpired(now.Add(time.Hour)))
	assert.Equal(t, SessionCompleted, s.EffectiveStatus(now.Add(time.Hour)))
}

func TestAddressBalanceTotal(t *testing.T) {
	b := AddressBalance{Confirmed: 1200, Unconfirmed: 300}
	assert.Equal(t, int64(1500), b.Total())
}
