package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

type ChainConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	MinDelay time.Duration
}

// ChainClient talks to a BCH REST indexer for balances, UTXOs and broadcasts.
type ChainClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

type addressDetails struct {
	BalanceSat            int64 `json:"balanceSat"`
	UnconfirmedBalanceSat int64 `json:"unconfirmedBalanceSat"`
}

type addressUTXOs struct {
	UTXOs []struct {
		TxID          string `json:"txid"`
		Vout          uint32 `json:"vout"`
		Satoshis      int64  `json:"satoshis"`
		Height        int64  `json:"height"`
		Confirmations int64  `json:"confirmations"`
	} `json:"utxos"`
}

func NewChainClient(cfg ChainConfig) *ChainClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &ChainClient{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		minDelay: cfg.MinDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *ChainClient) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

func (c *ChainClient) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	c.throttle()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}

// Balance returns confirmed and unconfirmed satoshi held by address.
func (c *ChainClient) Balance(ctx context.Context, address string) (*models.AddressBalance, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/address/details/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrChainQueryFailed, "balance for %s: %v", address, err)
	}

	var details addressDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, apperrors.New(apperrors.ErrChainQueryFailed, "decode balance for %s: %v", address, err)
	}

	return &models.AddressBalance{
		Address:     address,
		Confirmed:   details.BalanceSat,
		Unconfirmed: details.UnconfirmedBalanceSat,
	}, nil
}

func (c *ChainClient) UTXOs(ctx context.Context, address string) ([]models.UTXO, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/address/utxo/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrChainQueryFailed, "utxos for %s: %v", address, err)
	}

	var res addressUTXOs
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, apperrors.New(apperrors.ErrChainQueryFailed, "decode utxos for %s: %v", address, err)
	}

	utxos := make([]models.UTXO, 0, len(res.UTXOs))
	for _, u := range res.UTXOs {
		utxos = append(utxos, models.UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Satoshis:      u.Satoshis,
			Height:        u.Height,
			Confirmations: u.Confirmations,
		})
	}
	return utxos, nil
}

// Broadcast submits a signed raw transaction and returns its txid.
func (c *ChainClient) Broadcast(ctx context.Context, rawHex string) (string, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/rawtransactions/sendRawTransaction",
		map[string][]string{"hexes": {rawHex}})
	if err != nil {
		return "", apperrors.New(apperrors.ErrBroadcastFailed, "%v", err)
	}

	var txids []string
	if err := json.Unmarshal(data, &txids); err != nil || len(txids) == 0 {
		return "", apperrors.New(apperrors.ErrBroadcastFailed, "unexpected broadcast response: %s", string(data))
	}
	return txids[0], nil
}
