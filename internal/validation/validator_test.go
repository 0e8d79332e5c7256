package validation

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketpay/internal/config"
	"ticketpay/internal/vault"
)

func validConfig(t *testing.T) *config.Config {
	key, err := vault.GenerateMasterKey()
	require.NoError(t, err)

	return &config.Config{
		Wallet: config.WalletConfig{EncryptionKey: key, FundingFeePerKB: 1000, FundingDustLimit: 546},
		Checkout: config.CheckoutConfig{
			HoldWindow:            10 * time.Minute,
			BCHDiscountPercent:    10,
			CashbackPercent:       5,
			AllocationMaxAttempts: 5,
		},
		Webhook: config.WebhookConfig{Secret: "s"},
	}
}

func TestRun(t *testing.T) {
	assert.NoError(t, Run(validConfig(t)))

	cfg := validConfig(t)
	cfg.Wallet.EncryptionKey = ""
	cfg.Checkout.BCHDiscountPercent = 100
	err := Run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BCH_WALLET_ENCRYPTION_KEY")
	assert.Contains(t, err.Error(), "BCH_DISCOUNT_PERCENT")
}

func TestAPIValidator(t *testing.T) {
	statuses := map[string]int{
		"/health":                http.StatusOK,
		"/api/checkout/sessions": http.StatusBadRequest,
		"/api/payments/sessions": http.StatusBadRequest,
		"/api/tickets":           http.StatusUnauthorized,
		"/api/organizers/wallet": http.StatusUnauthorized,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code, ok := statuses[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewAPIValidator(srv.URL).ValidateAll())

	statuses["/api/tickets"] = http.StatusOK
	err := NewAPIValidator(srv.URL).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tickets require auth")
}
