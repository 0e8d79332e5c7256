// Package externaltest provides in-memory chain and rate oracles for tests.
package externaltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/models"
)

// Chain is a scripted chain oracle. Balances and UTXOs are set per address.
type Chain struct {
	mu        sync.Mutex
	balances  map[string]models.AddressBalance
	utxos     map[string][]models.UTXO
	queryErr  error
	broadcast []string
	nextTxID  int
	failSend  error
}

func NewChain() *Chain {
	return &Chain{
		balances: make(map[string]models.AddressBalance),
		utxos:    make(map[string][]models.UTXO),
	}
}

// Pay credits confirmed sats to address and records a matching UTXO.
func (c *Chain) Pay(address string, sats int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.balances[address]
	b.Address = address
	b.Confirmed += sats
	c.balances[address] = b
	c.nextTxID++
	c.utxos[address] = append(c.utxos[address], models.UTXO{
		TxID:          fmt.Sprintf("%064x", c.nextTxID),
		Vout:          0,
		Satoshis:      sats,
		Confirmations: 1,
	})
}

// PayUnconfirmed credits mempool sats without a UTXO.
func (c *Chain) PayUnconfirmed(address string, sats int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.balances[address]
	b.Address = address
	b.Unconfirmed += sats
	c.balances[address] = b
}

// FailQueries makes Balance and UTXOs return err until cleared with nil.
func (c *Chain) FailQueries(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryErr = err
}

func (c *Chain) FailBroadcast(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = err
}

func (c *Chain) Broadcasts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.broadcast...)
}

func (c *Chain) Balance(_ context.Context, address string) (*models.AddressBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queryErr != nil {
		return nil, apperrors.New(apperrors.ErrChainQueryFailed, "%v", c.queryErr)
	}
	b := c.balances[address]
	b.Address = address
	return &b, nil
}

func (c *Chain) UTXOs(_ context.Context, address string) ([]models.UTXO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queryErr != nil {
		return nil, apperrors.New(apperrors.ErrChainQueryFailed, "%v", c.queryErr)
	}
	return append([]models.UTXO(nil), c.utxos[address]...), nil
}

func (c *Chain) Broadcast(_ context.Context, rawHex string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend != nil {
		return "", apperrors.New(apperrors.ErrBroadcastFailed, "%v", c.failSend)
	}
	c.broadcast = append(c.broadcast, rawHex)
	c.nextTxID++
	return fmt.Sprintf("%064x", c.nextTxID), nil
}

// FixedRates quotes every currency at the same rate.
type FixedRates struct {
	PerBCH decimal.Decimal
	Err    error
}

func (f FixedRates) Rate(context.Context, string) (decimal.Decimal, error) {
	if f.Err != nil {
		return decimal.Zero, f.Err
	}
	return f.PerBCH, nil
}
