package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClient(t *testing.T) {
	nc, err := NewNATSClient(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, nc.Connected())
	assert.ErrorIs(t, nc.Publish("payment.completed", map[string]string{"id": "1"}), ErrNotConnected)

	_, err = nc.SubscribeQueue("payment.completed", "workers", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, nc.Close())
}

func TestNilClient(t *testing.T) {
	var nc *NATSClient
	assert.False(t, nc.Connected())
	assert.ErrorIs(t, nc.Publish("x", nil), ErrNotConnected)
}
