// Package hdwallet derives Bitcoin Cash keys and addresses from BIP-32 accounts.
//
// Organizer accounts live at m/44'/145'/0'. Receive addresses are the external
// branch children m/0/<index> of that account; the operational key that pays out
// cashback sits on the internal branch m/1/<index> so it never collides with an
// allocated receive address.
package hdwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	apperrors "ticketpay/internal/errors"
)

const (
	Purpose  = 44
	CoinType = 145
	Account  = 0

	ExternalBranch = 0
	InternalBranch = 1

	// entropy for a 12-word mnemonic
	EntropyBits = 128

	AccountPath = "m/44'/145'/0'"
)

// xprv/xpub version bytes are shared with bitcoin mainnet
var netParams = &chaincfg.MainNetParams

// Wallet is a freshly generated HD account. Callers must encrypt everything but Xpub.
type Wallet struct {
	Mnemonic string
	Seed     []byte
	Xprv     string
	Xpub     string
}

// GenerateWallet creates a new 12-word mnemonic and the account keys derived from it.
func GenerateWallet() (*Wallet, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to build mnemonic: %w", err)
	}

	return WalletFromMnemonic(mnemonic)
}

// WalletFromMnemonic restores the account keys for an existing mnemonic.
func WalletFromMnemonic(mnemonic string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "mnemonic failed checksum")
	}

	seed := bip39.NewSeed(mnemonic, "")

	master, err := hdkeychain.NewMaster(seed, netParams)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	account, err := deriveAccount(master)
	if err != nil {
		return nil, err
	}

	pub, err := account.Neuter()
	if err != nil {
		return nil, fmt.Errorf("failed to neuter account key: %w", err)
	}

	return &Wallet{
		Mnemonic: mnemonic,
		Seed:     seed,
		Xprv:     account.String(),
		Xpub:     pub.String(),
	}, nil
}

func deriveAccount(master *hdkeychain.ExtendedKey) (*hdkeychain.ExtendedKey, error) {
	key := master
	for _, idx := range []uint32{Purpose, CoinType, Account} {
		child, err := key.Derive(hdkeychain.HardenedKeyStart + idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", AccountPath, err)
		}
		key = child
	}
	return key, nil
}
