package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketpay/internal/database"
	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/hdwallet"
	"ticketpay/internal/logger"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
)

// Allocation is a reserved receive address. It must be bound to a payment or released.
type Allocation struct {
	OrganizerID string
	Index       uint32
	Address     string
}

// AddressAllocator hands out per-organizer derivation indices without reuse.
type AddressAllocator struct {
	store       repository.Store
	wallets     *WalletService
	events      *events
	monitor     *metrics.Monitor
	maxAttempts int
	backoff     time.Duration
}

func NewAddressAllocator(store repository.Store, wallets *WalletService, pub Publisher, monitor *metrics.Monitor, opts Options) *AddressAllocator {
	return &AddressAllocator{
		store:       store,
		wallets:     wallets,
		events:      &events{publisher: pub},
		monitor:     monitor,
		maxAttempts: opts.AllocationMaxAttempts,
		backoff:     opts.AllocationBackoff,
	}
}

func retryableAllocation(err error) bool {
	return errors.Is(err, apperrors.ErrAllocationConflict) || database.IsRetryableError(err)
}

// Allocate reserves the next index for the organizer and derives its address. The
// organizer's wallet is created on first use.
func (a *AddressAllocator) Allocate(ctx context.Context, organizerID string) (*Allocation, error) {
	log := logger.WithContext(ctx)

	var (
		index uint32
		err   error
	)
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		index, err = a.store.Wallets().ReserveIndex(ctx, organizerID)
		if errors.Is(err, apperrors.ErrNotFound) {
			if _, _, werr := a.wallets.EnsureWallet(ctx, organizerID); werr != nil {
				return nil, werr
			}
			index, err = a.store.Wallets().ReserveIndex(ctx, organizerID)
		}
		if err == nil || !retryableAllocation(err) {
			break
		}

		a.monitor.TrackAllocation("retry")
		log.Warn("Address allocation conflict, retrying",
			"organizer_id", organizerID, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * a.backoff):
		}
	}
	if err != nil {
		a.monitor.TrackAllocation("failed")
		if retryableAllocation(err) {
			return nil, fmt.Errorf("failed to allocate address after %d attempts: %w", a.maxAttempts, err)
		}
		return nil, fmt.Errorf("failed to allocate address: %w", err)
	}

	wallet, err := a.wallets.Get(ctx, organizerID)
	if err != nil {
		a.release(ctx, organizerID, index, "wallet lookup failed")
		return nil, err
	}

	address, err := hdwallet.DeriveAddress(wallet.Xpub, index)
	if err != nil {
		a.release(ctx, organizerID, index, "derivation failed")
		return nil, err
	}

	a.monitor.TrackAllocation("ok")
	log.Info("Address allocated", "organizer_id", organizerID, "derivation_index", index)

	return &Allocation{OrganizerID: organizerID, Index: index, Address: address}, nil
}

// Release frees a reservation that never got bound. The counter only rolls back when
// nothing was allocated after it; otherwise the index stays a gap.
func (a *AddressAllocator) Release(ctx context.Context, alloc *Allocation) (released, rolledBack bool, err error) {
	released, rolledBack, err = a.store.Wallets().ReleaseReservation(ctx, alloc.OrganizerID, alloc.Index)
	if err != nil {
		return false, false, fmt.Errorf("failed to release reservation: %w", err)
	}
	if released {
		a.monitor.TrackAllocation("released")
	}
	return released, rolledBack, nil
}

func (a *AddressAllocator) release(ctx context.Context, organizerID string, index uint32, reason string) bool {
	released, rolledBack, err := a.Release(ctx, &Allocation{OrganizerID: organizerID, Index: index})
	if err != nil {
		logger.WithContext(ctx).Error("Failed to release address reservation",
			"organizer_id", organizerID, "derivation_index", index, "reason", reason, "error", err)
		return false
	}
	if !released {
		return false
	}
	logger.WithContext(ctx).Info("Address reservation released",
		"organizer_id", organizerID, "derivation_index", index, "reason", reason, "rolled_back", rolledBack)

	a.events.publish(ctx, models.EventAddressReleased, models.AddressReleasedEvent{
		OrganizerID:     organizerID,
		DerivationIndex: index,
		RolledBack:      rolledBack,
		Reason:          reason,
		Timestamp:       time.Now(),
	})
	return true
}

// SweepStale releases reservations that were never bound, e.g. after a crash between
// allocation and the payment transaction.
func (a *AddressAllocator) SweepStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	stale, err := a.store.Wallets().StaleReservations(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale reservations: %w", err)
	}

	released := 0
	for _, r := range stale {
		if a.release(ctx, r.OrganizerID, r.DerivationIndex, "stale") {
			released++
		}
	}
	return released, nil
}
