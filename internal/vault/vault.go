package vault

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"ticketpay/internal/hdwallet"
	"ticketpay/internal/models"
)

// Vault creates organizer wallets and unwraps their secrets on demand.
type Vault struct {
	cipher *Cipher
}

func New(c *Cipher) *Vault {
	return &Vault{cipher: c}
}

// NewFromKey is a convenience for mains: parse the master key and build the vault.
func NewFromKey(masterKeyB64 string) (*Vault, error) {
	c, err := NewCipher(masterKeyB64)
	if err != nil {
		return nil, err
	}
	return New(c), nil
}

// CreateEncryptedWallet generates a fresh HD account and encrypts seed and xprv
// independently. Only the xpub comes back in the clear.
func (v *Vault) CreateEncryptedWallet() (*models.OrganizerWalletSecrets, error) {
	w, err := hdwallet.GenerateWallet()
	if err != nil {
		return nil, err
	}

	encSeed, err := v.cipher.EncryptString(hex.EncodeToString(w.Seed))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt seed: %w", err)
	}
	encXprv, err := v.cipher.EncryptString(w.Xprv)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt xprv: %w", err)
	}

	return &models.OrganizerWalletSecrets{
		Xpub:          w.Xpub,
		EncryptedXprv: encXprv,
		EncryptedSeed: encSeed,
	}, nil
}

func (v *Vault) DecryptXprv(encrypted string) (string, error) {
	return v.cipher.DecryptString(encrypted)
}

// DecryptSeed returns the raw BIP-39 seed bytes.
func (v *Vault) DecryptSeed(encrypted string) ([]byte, error) {
	s, err := v.cipher.DecryptString(encrypted)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	return seed, nil
}

func (v *Vault) EncryptWIF(wif string) (string, error) {
	return v.cipher.EncryptString(wif)
}

func (v *Vault) DecryptWIF(encrypted string) (string, error) {
	return v.cipher.DecryptString(encrypted)
}

// OperationalKey unwraps the organizer's xprv and derives the key at m/1/<fundingIndex>.
func (v *Vault) OperationalKey(w *models.OrganizerWallet, fundingIndex uint32) (*btcec.PrivateKey, error) {
	xprv, err := v.DecryptXprv(w.EncryptedXprv)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt organizer xprv: %w", err)
	}
	return hdwallet.DeriveBranchKey(xprv, hdwallet.InternalBranch, fundingIndex)
}
