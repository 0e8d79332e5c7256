package hdwallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Keypair is a standalone (non-HD) key used as a bearer wallet.
type Keypair struct {
	Address string
	WIF     string
}

func NewKeypair() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return KeypairFromPrivateKey(priv)
}

func KeypairFromPrivateKey(priv *btcec.PrivateKey) (*Keypair, error) {
	wif, err := EncodeWIF(priv.Serialize())
	if err != nil {
		return nil, err
	}

	address, err := AddressFromPrivateKey(priv)
	if err != nil {
		return nil, err
	}

	return &Keypair{Address: address, WIF: wif}, nil
}

// KeypairFromWIF rebuilds the address for a stored bearer secret.
func KeypairFromWIF(wif string) (*Keypair, error) {
	raw, err := DecodeWIF(wif)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return KeypairFromPrivateKey(priv)
}
