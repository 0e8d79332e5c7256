// Package vault keeps wallet secrets encrypted at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	apperrors "ticketpay/internal/errors"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

// Cipher is AES-256-GCM with blobs laid out as base64(nonce || tag || ciphertext).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher parses the base64 master key. A missing or short key is a startup error.
func NewCipher(masterKeyB64 string) (*Cipher, error) {
	masterKeyB64 = strings.TrimSpace(masterKeyB64)
	if masterKeyB64 == "" {
		return nil, apperrors.ErrEncryptionKeyMissing
	}

	key, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyLength, "master key is not valid base64: %v", err)
	}
	if len(key) != KeySize {
		return nil, apperrors.New(apperrors.ErrInvalidKeyLength, "decoded master key has %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init aes: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to init gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// GenerateMasterKey returns a fresh base64 master key suitable for BCH_WALLET_ENCRYPTION_KEY.
func GenerateMasterKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to read random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	// Seal appends ciphertext || tag; the stored layout puts the tag first.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - TagSize

	blob := make([]byte, 0, NonceSize+len(sealed))
	blob = append(blob, nonce...)
	blob = append(blob, sealed[ctLen:]...)
	blob = append(blob, sealed[:ctLen]...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "ciphertext is not valid base64")
	}
	if len(blob) < NonceSize+TagSize {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "ciphertext too short")
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize : NonceSize+TagSize]
	ct := blob[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidKeyMaterial, "ciphertext failed authentication")
	}
	return plaintext, nil
}

func (c *Cipher) EncryptString(s string) (string, error) {
	return c.Encrypt([]byte(s))
}

func (c *Cipher) DecryptString(encoded string) (string, error) {
	b, err := c.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
