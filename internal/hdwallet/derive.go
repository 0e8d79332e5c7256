package hdwallet

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	bchcfg "github.com/gcash/bchd/chaincfg"
	"github.com/gcash/bchutil"

	apperrors "ticketpay/internal/errors"
)

const CashAddrPrefix = "bitcoincash"

var bchParams = &bchcfg.MainNetParams

// DeriveAddress returns the CashAddr of receive child m/0/<index> under the account xpub.
func DeriveAddress(xpub string, index uint32) (string, error) {
	child, err := deriveChild(xpub, false, ExternalBranch, index)
	if err != nil {
		return "", err
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return "", apperrors.New(apperrors.ErrInvalidKeyMaterial, "derive public key: %v", err)
	}

	return AddressFromPublicKey(pub)
}

// DerivePrivateKey returns the private key for receive child m/0/<index>. It is the
// signing counterpart of DeriveAddress.
func DerivePrivateKey(xprv string, index uint32) (*btcec.PrivateKey, error) {
	return DeriveBranchKey(xprv, ExternalBranch, index)
}

// DeriveBranchKey returns the private key at m/<branch>/<index> under the account xprv.
func DeriveBranchKey(xprv string, branch, index uint32) (*btcec.PrivateKey, error) {
	child, err := deriveChild(xprv, true, branch, index)
	if err != nil {
		return nil, err
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "derive private key: %v", err)
	}
	return priv, nil
}

func deriveChild(extended string, wantPrivate bool, branch, index uint32) (*hdkeychain.ExtendedKey, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "index %d is out of the non-hardened range", index)
	}

	key, err := hdkeychain.NewKeyFromString(strings.TrimSpace(extended))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "parse extended key: %v", err)
	}
	if wantPrivate && !key.IsPrivate() {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "extended key is not private")
	}

	branchKey, err := key.Derive(branch)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "derive branch %d: %v", branch, err)
	}

	child, err := branchKey.Derive(index)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "derive child %d/%d: %v", branch, index, err)
	}
	return child, nil
}

// AddressFromPublicKey encodes HASH160(compressed pubkey) as a P2PKH CashAddr.
func AddressFromPublicKey(pub *btcec.PublicKey) (string, error) {
	hash := btcutil.Hash160(pub.SerializeCompressed())

	addr, err := bchutil.NewAddressPubKeyHash(hash, bchParams)
	if err != nil {
		return "", fmt.Errorf("failed to encode cash address: %w", err)
	}

	return withPrefix(addr.EncodeAddress()), nil
}

func AddressFromPrivateKey(priv *btcec.PrivateKey) (string, error) {
	return AddressFromPublicKey(priv.PubKey())
}

// ParseAddress validates a CashAddr, with or without its prefix.
func ParseAddress(address string) (bchutil.Address, error) {
	addr, err := bchutil.DecodeAddress(strings.TrimSpace(address), bchParams)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "invalid cash address %q: %v", address, err)
	}
	return addr, nil
}

func withPrefix(encoded string) string {
	if strings.Contains(encoded, ":") {
		return encoded
	}
	return CashAddrPrefix + ":" + encoded
}
