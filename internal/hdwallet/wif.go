package hdwallet

import (
	"github.com/btcsuite/btcd/btcutil/base58"

	apperrors "ticketpay/internal/errors"
)

const (
	wifVersion         = 0x80
	compressedPubKeyID = 0x01
	privateKeyLen      = 32
)

// EncodeWIF encodes a raw private key as 0x80 || key || 0x01 with a Base58Check checksum.
func EncodeWIF(privateKey []byte) (string, error) {
	if len(privateKey) != privateKeyLen {
		return "", apperrors.New(apperrors.ErrInvalidKeyMaterial, "private key must be %d bytes, got %d", privateKeyLen, len(privateKey))
	}

	payload := make([]byte, 0, privateKeyLen+1)
	payload = append(payload, privateKey...)
	payload = append(payload, compressedPubKeyID)

	return base58.CheckEncode(payload, wifVersion), nil
}

// DecodeWIF is the inverse of EncodeWIF.
func DecodeWIF(wif string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(wif)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "decode WIF: %v", err)
	}
	if version != wifVersion {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "unexpected WIF version 0x%02x", version)
	}
	if len(payload) != privateKeyLen+1 || payload[privateKeyLen] != compressedPubKeyID {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "WIF is not a compressed-key encoding")
	}

	key := make([]byte, privateKeyLen)
	copy(key, payload[:privateKeyLen])
	return key, nil
}
