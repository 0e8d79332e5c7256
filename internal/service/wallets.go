package service

import (
	"context"
	"fmt"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/logger"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/internal/vault"
)

type WalletService struct {
	store repository.Store
	vault *vault.Vault
}

func NewWalletService(store repository.Store, v *vault.Vault) *WalletService {
	return &WalletService{store: store, vault: v}
}

// EnsureWallet returns the organizer's wallet, creating it on first use. The boolean
// reports whether this call created it.
func (s *WalletService) EnsureWallet(ctx context.Context, organizerID string) (*models.OrganizerWallet, bool, error) {
	existing, err := s.store.Wallets().Get(ctx, organizerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get wallet: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	org, err := s.store.Organizers().GetByID(ctx, organizerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get organizer: %w", err)
	}
	if org == nil {
		return nil, false, apperrors.New(apperrors.ErrNotFound, "organizer %s not found", organizerID)
	}
	if s.vault == nil {
		return nil, false, apperrors.ErrEncryptionKeyMissing
	}

	secrets, err := s.vault.CreateEncryptedWallet()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create wallet: %w", err)
	}

	w := &models.OrganizerWallet{
		OrganizerID:   organizerID,
		Xpub:          secrets.Xpub,
		EncryptedXprv: secrets.EncryptedXprv,
		EncryptedSeed: secrets.EncryptedSeed,
	}
	inserted, err := s.store.Wallets().CreateIfAbsent(ctx, w)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store wallet: %w", err)
	}
	if !inserted {
		// lost a creation race; the stored wallet wins
		w, err = s.store.Wallets().Get(ctx, organizerID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get wallet: %w", err)
		}
		return w, false, nil
	}

	logger.WithContext(ctx).Info("Organizer wallet created", "organizer_id", organizerID)
	return w, true, nil
}

func (s *WalletService) Get(ctx context.Context, organizerID string) (*models.OrganizerWallet, error) {
	w, err := s.store.Wallets().Get(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if w == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "organizer %s has no wallet", organizerID)
	}
	return w, nil
}
