package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ticketpay/internal/config"
	"ticketpay/internal/logger"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/internal/vault"
)

// ChainOracle is the read/broadcast view of the BCH chain.
type ChainOracle interface {
	Balance(ctx context.Context, address string) (*models.AddressBalance, error)
	UTXOs(ctx context.Context, address string) ([]models.UTXO, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// RateOracle converts fiat cents into satoshi.
type RateOracle interface {
	Quote(ctx context.Context, cents int64, currency string) (int64, decimal.Decimal, error)
}

type Publisher interface {
	Publish(subject string, data interface{}) error
}

type TicketIndexer interface {
	IndexTicket(ctx context.Context, t *models.Ticket) error
}

// Options are the tunables the services read from config.
type Options struct {
	HoldWindow            time.Duration
	BCHDiscountPercent    float64
	CashbackPercent       float64
	TicketRefPrefix       string
	AllocationMaxAttempts int
	AllocationBackoff     time.Duration
	FundingIndex          uint32
	FundingFeePerKB       int64
	FundingDustLimit      int64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HoldWindow:            cfg.Checkout.HoldWindow,
		BCHDiscountPercent:    cfg.Checkout.BCHDiscountPercent,
		CashbackPercent:       cfg.Checkout.CashbackPercent,
		TicketRefPrefix:       cfg.Checkout.TicketRefPrefix,
		AllocationMaxAttempts: cfg.Checkout.AllocationMaxAttempts,
		AllocationBackoff:     25 * time.Millisecond,
		FundingIndex:          cfg.Wallet.FundingIndex,
		FundingFeePerKB:       cfg.Wallet.FundingFeePerKB,
		FundingDustLimit:      cfg.Wallet.FundingDustLimit,
	}
}

// Deps wires the services. Publisher, Indexer and Monitor are optional.
type Deps struct {
	Store     repository.Store
	Vault     *vault.Vault
	Chain     ChainOracle
	Rates     RateOracle
	Publisher Publisher
	Indexer   TicketIndexer
	Monitor   *metrics.Monitor
	Options   Options
	Now       func() time.Time
}

type Services struct {
	Wallets   *WalletService
	Allocator *AddressAllocator
	Checkout  *CheckoutService
	Payments  *PaymentGateway
	Issuance  *IssuanceService
	Cashback  *CashbackMinter
}

func NewServices(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Options.HoldWindow <= 0 {
		d.Options.HoldWindow = 10 * time.Minute
	}
	if d.Options.AllocationMaxAttempts <= 0 {
		d.Options.AllocationMaxAttempts = 5
	}
	if d.Options.TicketRefPrefix == "" {
		d.Options.TicketRefPrefix = "TKT"
	}

	wallets := NewWalletService(d.Store, d.Vault)
	allocator := NewAddressAllocator(d.Store, wallets, d.Publisher, d.Monitor, d.Options)
	cashback := NewCashbackMinter(d.Store, d.Vault, d.Chain, d.Publisher, d.Monitor, d.Options)
	issuance := NewIssuanceService(d.Store, cashback, d.Indexer, d.Publisher, d.Monitor, d.Options)
	payments := NewPaymentGateway(d.Store, allocator, issuance, cashback, d.Chain, d.Rates, d.Publisher, d.Monitor, d.Options, d.Now)
	checkout := NewCheckoutService(d.Store, payments, issuance, cashback, d.Options, d.Now)

	return &Services{
		Wallets:   wallets,
		Allocator: allocator,
		Checkout:  checkout,
		Payments:  payments,
		Issuance:  issuance,
		Cashback:  cashback,
	}
}

// outbox collects domain events inside a transaction; they are published once it commits.
type outbox []outboxEntry

type outboxEntry struct {
	subject string
	data    interface{}
}

func (o *outbox) add(subject string, data interface{}) {
	*o = append(*o, outboxEntry{subject: subject, data: data})
}

type events struct {
	publisher Publisher
}

func (e *events) publish(ctx context.Context, subject string, data interface{}) {
	if e == nil || e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(subject, data); err != nil {
		// Log error but don't fail the operation
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err,
			"event_type", subject)
	}
}

func (e *events) flush(ctx context.Context, o outbox) {
	for _, entry := range o {
		e.publish(ctx, entry.subject, entry.data)
	}
}
