package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/hdwallet"
	"ticketpay/internal/logger"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/internal/vault"
)

// CashbackMinter creates one-time bearer wallets ("stamps") and funds them from the
// organizer's operational key.
type CashbackMinter struct {
	store   repository.Store
	vault   *vault.Vault
	chain   ChainOracle
	events  *events
	monitor *metrics.Monitor

	percent      float64
	fundingIndex uint32
	feePerKB     int64
	dustLimit    int64
}

func NewCashbackMinter(store repository.Store, v *vault.Vault, chain ChainOracle, pub Publisher, monitor *metrics.Monitor, opts Options) *CashbackMinter {
	return &CashbackMinter{
		store:        store,
		vault:        v,
		chain:        chain,
		events:       &events{publisher: pub},
		monitor:      monitor,
		percent:      opts.CashbackPercent,
		fundingIndex: opts.FundingIndex,
		feePerKB:     opts.FundingFeePerKB,
		dustLimit:    opts.FundingDustLimit,
	}
}

// Mint generates a fresh standalone keypair. The WIF is the bearer secret.
func (m *CashbackMinter) Mint() (*hdwallet.Keypair, error) {
	return hdwallet.NewKeypair()
}

func (m *CashbackMinter) RewardFor(paymentSats int64) int64 {
	return CashbackReward(paymentSats, m.percent)
}

// RecordStamp stores a stamp for the payment unless one exists. It runs against tx so it
// commits together with the ticket it belongs to.
func (m *CashbackMinter) RecordStamp(ctx context.Context, tx repository.Store, paymentID, organizerID string, amountSats int64) (*models.CashbackStamp, bool, error) {
	existing, err := tx.Cashback().GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cashback: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	if amountSats <= 0 {
		return nil, false, apperrors.New(apperrors.ErrBadRequest, "cashback amount must be positive")
	}
	if m.vault == nil {
		return nil, false, apperrors.ErrEncryptionKeyMissing
	}

	kp, err := m.Mint()
	if err != nil {
		return nil, false, err
	}
	encWIF, err := m.vault.EncryptWIF(kp.WIF)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encrypt cashback key: %w", err)
	}

	stamp, inserted, err := tx.Cashback().CreateIfAbsent(ctx, &models.CashbackStamp{
		ID:           uuid.New().String(),
		PaymentID:    paymentID,
		OrganizerID:  organizerID,
		AmountSats:   amountSats,
		Address:      kp.Address,
		EncryptedWIF: encWIF,
		Status:       models.CashbackUnclaimed,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create cashback: %w", err)
	}
	if inserted {
		m.monitor.TrackCashback("recorded", amountSats)
	}
	return stamp, inserted, nil
}

// GetByPayment returns the stamp for a payment; reveal decrypts the bearer WIF.
func (m *CashbackMinter) GetByPayment(ctx context.Context, paymentID string, reveal bool) (*models.CashbackView, error) {
	stamp, err := m.store.Cashback().GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cashback: %w", err)
	}
	if stamp == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "cashback not found for this payment")
	}

	view := &models.CashbackView{Stamp: stamp}
	if reveal && m.vault != nil {
		wif, err := m.vault.DecryptWIF(stamp.EncryptedWIF)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt cashback key: %w", err)
		}
		view.WIF = wif
	}
	return view, nil
}

// Fund pays the stamp's amount from the organizer's operational address. organizerID,
// when set, must own the stamp. The stamp is moved to FUNDING before any transaction is
// built, so only one caller broadcasts. A failed broadcast marks it FAILED; failures
// before that, such as an underfunded operational address, return it to UNCLAIMED.
func (m *CashbackMinter) Fund(ctx context.Context, paymentID, organizerID string) (*models.FundCashbackResponse, error) {
	log := logger.WithContext(ctx)

	stamp, err := m.store.Cashback().GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cashback: %w", err)
	}
	if stamp == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "cashback not found for this payment")
	}
	if organizerID != "" && stamp.OrganizerID != organizerID {
		return nil, apperrors.New(apperrors.ErrForbidden, "cashback belongs to another organizer")
	}
	if stamp.Status != models.CashbackUnclaimed {
		return nil, alreadyFunding(stamp.Status)
	}

	wallet, err := m.store.Wallets().Get(ctx, stamp.OrganizerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if wallet == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "organizer %s has no wallet", stamp.OrganizerID)
	}
	if m.vault == nil {
		return nil, apperrors.ErrEncryptionKeyMissing
	}

	key, err := m.vault.OperationalKey(wallet, m.fundingIndex)
	if err != nil {
		return nil, err
	}
	fromAddress, err := hdwallet.AddressFromPrivateKey(key)
	if err != nil {
		return nil, err
	}

	claimed, err := m.store.Cashback().UpdateStatus(ctx, stamp.ID, models.CashbackUnclaimed, models.CashbackFunding, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to claim cashback: %w", err)
	}
	if !claimed {
		current, err := m.store.Cashback().GetByID(ctx, stamp.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get cashback: %w", err)
		}
		if current == nil {
			return nil, apperrors.New(apperrors.ErrNotFound, "cashback not found for this payment")
		}
		return nil, alreadyFunding(current.Status)
	}

	start := time.Now()
	utxos, err := m.chain.UTXOs(ctx, fromAddress)
	m.monitor.TrackChainQuery("utxos", err, time.Since(start))
	if err != nil {
		m.unclaim(ctx, stamp, err)
		return nil, err
	}

	fundingTx, err := hdwallet.BuildFundingTx(hdwallet.FundingRequest{
		From:       key,
		UTXOs:      utxos,
		ToAddress:  stamp.Address,
		AmountSats: stamp.AmountSats,
		FeePerKB:   m.feePerKB,
		DustLimit:  m.dustLimit,
	})
	if err != nil {
		m.unclaim(ctx, stamp, err)
		return nil, err
	}

	start = time.Now()
	txID, err := m.chain.Broadcast(ctx, fundingTx.RawHex)
	m.monitor.TrackChainQuery("broadcast", err, time.Since(start))
	if err != nil {
		m.markFailed(ctx, stamp, err)
		if !errors.Is(err, apperrors.ErrBroadcastFailed) {
			err = apperrors.New(apperrors.ErrBroadcastFailed, "%v", err)
		}
		return nil, err
	}

	ok, err := m.store.Cashback().UpdateStatus(context.WithoutCancel(ctx), stamp.ID, models.CashbackFunding, models.CashbackClaimed, &txID)
	if err != nil {
		// The transaction is out; the stamp stays FUNDING rather than risk a second send.
		log.Error("Failed to record cashback funding", "stamp_id", stamp.ID, "funding_tx_id", txID, "error", err)
		return nil, fmt.Errorf("failed to update cashback: %w", err)
	}
	if !ok {
		log.Warn("Cashback changed state while funding", "stamp_id", stamp.ID, "funding_tx_id", txID)
	}

	m.monitor.TrackCashback("funded", stamp.AmountSats)
	log.Info("Cashback funded",
		"stamp_id", stamp.ID,
		"payment_id", paymentID,
		"amount_sats", stamp.AmountSats,
		"fee_sats", fundingTx.FeeSats,
		"funding_tx_id", txID)

	m.events.publish(ctx, models.EventCashbackFunded, models.CashbackEvent{
		StampID:     stamp.ID,
		PaymentID:   stamp.PaymentID,
		OrganizerID: stamp.OrganizerID,
		AmountSats:  stamp.AmountSats,
		FundingTxID: &txID,
		Timestamp:   time.Now(),
	})

	return &models.FundCashbackResponse{
		StampID:     stamp.ID,
		Status:      models.CashbackClaimed,
		FundingTxID: txID,
	}, nil
}

func alreadyFunding(status string) error {
	return apperrors.New(apperrors.ErrConflict, "cashback already funded or invalid").
		WithDetail("status", status)
}

// unclaim hands a FUNDING stamp back when nothing was broadcast, so it can be funded later.
func (m *CashbackMinter) unclaim(ctx context.Context, stamp *models.CashbackStamp, cause error) {
	log := logger.WithContext(ctx)
	if _, err := m.store.Cashback().UpdateStatus(context.WithoutCancel(ctx), stamp.ID, models.CashbackFunding, models.CashbackUnclaimed, nil); err != nil {
		log.Error("Failed to release cashback claim", "stamp_id", stamp.ID, "error", err)
	}
	log.Warn("Cashback not funded, left unclaimed", "stamp_id", stamp.ID, "payment_id", stamp.PaymentID, "error", cause)
}

func (m *CashbackMinter) markFailed(ctx context.Context, stamp *models.CashbackStamp, cause error) {
	log := logger.WithContext(ctx)
	if _, err := m.store.Cashback().UpdateStatus(context.WithoutCancel(ctx), stamp.ID, models.CashbackFunding, models.CashbackFailed, nil); err != nil {
		log.Error("Failed to mark cashback failed", "stamp_id", stamp.ID, "error", err)
	}
	log.Error("Cashback funding failed", "stamp_id", stamp.ID, "payment_id", stamp.PaymentID, "error", cause)

	m.events.publish(ctx, models.EventCashbackFailed, models.CashbackEvent{
		StampID:     stamp.ID,
		PaymentID:   stamp.PaymentID,
		OrganizerID: stamp.OrganizerID,
		AmountSats:  stamp.AmountSats,
		Reason:      cause.Error(),
		Timestamp:   time.Now(),
	})
}
