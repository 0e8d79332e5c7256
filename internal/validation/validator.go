package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ticketpay/internal/config"
	"ticketpay/internal/logger"
	"ticketpay/internal/vault"
)

// Run checks that the configuration can start the API: the vault key parses and
// the checkout tunables are in range.
func Run(cfg *config.Config) error {
	var errs []error

	if _, err := vault.NewFromKey(cfg.Wallet.EncryptionKey); err != nil {
		errs = append(errs, fmt.Errorf("BCH_WALLET_ENCRYPTION_KEY: %w", err))
	}
	if cfg.Checkout.HoldWindow <= 0 {
		errs = append(errs, errors.New("CHECKOUT_HOLD_WINDOW must be positive"))
	}
	if p := cfg.Checkout.BCHDiscountPercent; p < 0 || p >= 100 {
		errs = append(errs, fmt.Errorf("BCH_DISCOUNT_PERCENT must be in [0, 100), got %v", p))
	}
	if p := cfg.Checkout.CashbackPercent; p < 0 || p > 100 {
		errs = append(errs, fmt.Errorf("CASHBACK_PERCENT must be in [0, 100], got %v", p))
	}
	if cfg.Checkout.AllocationMaxAttempts < 1 {
		errs = append(errs, errors.New("ALLOCATION_MAX_ATTEMPTS must be at least 1"))
	}
	if cfg.Wallet.FundingDustLimit <= 0 || cfg.Wallet.FundingFeePerKB <= 0 {
		errs = append(errs, errors.New("funding fee and dust limit must be positive"))
	}
	if cfg.Webhook.Secret == "" {
		logger.Get().Warn("BCH_WEBHOOK_SECRET is empty, webhook calls are not authenticated")
	}

	return errors.Join(errs...)
}

// APIValidator проверяет публичные контракты запущенного API
type APIValidator struct {
	baseURL string
	client  *http.Client
}

func NewAPIValidator(baseURL string) *APIValidator {
	return &APIValidator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type check struct {
	name   string
	method string
	path   string
	body   interface{}
	want   int
}

// ValidateAll runs requests whose outcome does not depend on seeded data.
func (v *APIValidator) ValidateAll() error {
	log := logger.Get()
	log.Info("Validating API contracts", "base_url", v.baseURL)

	checks := []check{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"start checkout without body", http.MethodPost, "/api/checkout/sessions", map[string]string{}, http.StatusBadRequest},
		{"unknown checkout session", http.MethodGet, "/api/checkout/sessions/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound},
		{"unknown payment method", http.MethodPost, "/api/payments/sessions",
			map[string]string{"checkoutSessionId": "x", "paymentMethod": "PAYPAL"}, http.StatusBadRequest},
		{"verify unknown session", http.MethodGet, "/api/payments/verify/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound},
		{"tickets require auth", http.MethodGet, "/api/tickets", nil, http.StatusUnauthorized},
		{"wallet requires auth", http.MethodGet, "/api/organizers/wallet", nil, http.StatusUnauthorized},
	}

	for _, c := range checks {
		status, body, err := v.do(c.method, c.path, c.body)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		if status != c.want {
			return fmt.Errorf("%s: %s %s: expected %d, got %d: %s", c.name, c.method, c.path, c.want, status, body)
		}
		log.Info("Check passed", "check", c.name, "status", status)
	}

	return nil
}

func (v *APIValidator) do(method, path string, body interface{}) (int, string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(raw), nil
}
