package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrapsToKind(t *testing.T) {
	err := New(ErrSoldOut, "ticket type %s has no remaining inventory", "tt-1")

	assert.True(t, errors.Is(err, ErrSoldOut))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "ticket type is sold out: ticket type tt-1 has no remaining inventory", err.Error())
}

func TestMessage(t *testing.T) {
	wrapped := fmt.Errorf("failed to issue ticket: %w", New(ErrForbidden, "event belongs to another organizer"))
	assert.Equal(t, "event belongs to another organizer", Message(wrapped))

	assert.Equal(t, ErrChainQueryFailed.Error(), Message(fmt.Errorf("poll: %w", ErrChainQueryFailed)))
	assert.Equal(t, "internal error", Message(errors.New("boom")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrConflict, "payment method already attached").WithDetail("method", "CARD")
	assert.Equal(t, "CARD", err.Details["method"])
}
