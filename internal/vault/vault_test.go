package vault

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ticketpay/internal/errors"
	"ticketpay/internal/hdwallet"
	"ticketpay/internal/models"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestNewCipherKeyValidation(t *testing.T) {
	_, err := NewCipher("")
	assert.True(t, errors.Is(err, apperrors.ErrEncryptionKeyMissing))

	short := base64.StdEncoding.EncodeToString(make([]byte, 16))
	_, err = NewCipher(short)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyLength))

	_, err = NewCipher("%%%not-base64%%%")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyLength))
}

func TestCipherRoundTripAndLayout(t *testing.T) {
	c := newTestCipher(t)

	plaintext := []byte("xprv-secret-material")
	enc, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	blob, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	assert.Len(t, blob, NonceSize+TagSize+len(plaintext))

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, plaintext, dec)

	// fresh nonce per call
	enc2, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, enc, enc2)
}

func TestCipherDetectsTampering(t *testing.T) {
	c := newTestCipher(t)

	enc, err := c.Encrypt([]byte("wif"))
	require.NoError(t, err)
	blob, _ := base64.StdEncoding.DecodeString(enc)
	blob[len(blob)-1] ^= 0xff

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(blob))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyMaterial))

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyMaterial))
}

func TestCipherRejectsForeignKey(t *testing.T) {
	a := newTestCipher(t)
	b := newTestCipher(t)

	enc, err := a.EncryptString("seed")
	require.NoError(t, err)
	_, err = b.DecryptString(enc)
	assert.Error(t, err)
}

func TestCreateEncryptedWallet(t *testing.T) {
	v := New(newTestCipher(t))

	secrets, err := v.CreateEncryptedWallet()
	require.NoError(t, err)
	assert.NotContains(t, secrets.EncryptedXprv, "xprv")

	xprv, err := v.DecryptXprv(secrets.EncryptedXprv)
	require.NoError(t, err)

	seed, err := v.DecryptSeed(secrets.EncryptedSeed)
	require.NoError(t, err)
	assert.Len(t, seed, 64)

	// the decrypted xprv signs for the addresses the stored xpub derives
	addr, err := hdwallet.DeriveAddress(secrets.Xpub, 2)
	require.NoError(t, err)
	priv, err := hdwallet.DerivePrivateKey(xprv, 2)
	require.NoError(t, err)
	fromPriv, err := hdwallet.AddressFromPrivateKey(priv)
	require.NoError(t, err)
	assert.Equal(t, addr, fromPriv)
}

func TestOperationalKeyUsesInternalBranch(t *testing.T) {
	v := New(newTestCipher(t))
	secrets, err := v.CreateEncryptedWallet()
	require.NoError(t, err)

	w := &models.OrganizerWallet{Xpub: secrets.Xpub, EncryptedXprv: secrets.EncryptedXprv}
	key, err := v.OperationalKey(w, 0)
	require.NoError(t, err)

	opAddr, err := hdwallet.AddressFromPrivateKey(key)
	require.NoError(t, err)
	receive0, err := hdwallet.DeriveAddress(secrets.Xpub, 0)
	require.NoError(t, err)
	assert.NotEqual(t, receive0, opAddr)
}

func TestWIFEncryption(t *testing.T) {
	v := New(newTestCipher(t))
	kp, err := hdwallet.NewKeypair()
	require.NoError(t, err)

	enc, err := v.EncryptWIF(kp.WIF)
	require.NoError(t, err)
	assert.NotEqual(t, kp.WIF, enc)

	dec, err := v.DecryptWIF(enc)
	require.NoError(t, err)
	assert.Equal(t, kp.WIF, dec)
}
