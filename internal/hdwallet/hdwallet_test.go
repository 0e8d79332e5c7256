package hdwallet

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ticketpay/internal/errors"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	w, err := WalletFromMnemonic(testMnemonic)
	require.NoError(t, err)
	return w
}

func TestGenerateWallet(t *testing.T) {
	w, err := GenerateWallet()
	require.NoError(t, err)

	assert.Len(t, strings.Fields(w.Mnemonic), 12)
	assert.Len(t, w.Seed, 64)
	assert.True(t, strings.HasPrefix(w.Xprv, "xprv"))
	assert.True(t, strings.HasPrefix(w.Xpub, "xpub"))

	other, err := GenerateWallet()
	require.NoError(t, err)
	assert.NotEqual(t, w.Mnemonic, other.Mnemonic)
}

func TestWalletFromMnemonicIsDeterministic(t *testing.T) {
	a := testWallet(t)
	b := testWallet(t)

	assert.Equal(t, a.Xpub, b.Xpub)
	assert.Equal(t, a.Xprv, b.Xprv)
}

func TestWalletFromMnemonicRejectsBadChecksum(t *testing.T) {
	_, err := WalletFromMnemonic("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyMaterial))
}

func TestDeriveAddressDeterministic(t *testing.T) {
	w := testWallet(t)

	first, err := DeriveAddress(w.Xpub, 0)
	require.NoError(t, err)
	again, err := DeriveAddress(w.Xpub, 0)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.True(t, strings.HasPrefix(first, "bitcoincash:q"), first)
}

func TestDeriveAddressDistinctPerIndex(t *testing.T) {
	w := testWallet(t)

	seen := make(map[string]uint32)
	for i := uint32(0); i < 25; i++ {
		addr, err := DeriveAddress(w.Xpub, i)
		require.NoError(t, err)
		prev, dup := seen[addr]
		require.False(t, dup, "index %d reuses address of index %d", i, prev)
		seen[addr] = i
	}
}

func TestPrivateKeyMatchesDerivedAddress(t *testing.T) {
	w := testWallet(t)

	for _, idx := range []uint32{0, 1, 7, 1000} {
		addr, err := DeriveAddress(w.Xpub, idx)
		require.NoError(t, err)

		priv, err := DerivePrivateKey(w.Xprv, idx)
		require.NoError(t, err)

		fromPriv, err := AddressFromPrivateKey(priv)
		require.NoError(t, err)
		assert.Equal(t, addr, fromPriv, "index %d", idx)
	}
}

func TestInternalBranchDoesNotCollideWithReceiveBranch(t *testing.T) {
	w := testWallet(t)

	receive, err := DeriveAddress(w.Xpub, 0)
	require.NoError(t, err)

	funding, err := DeriveBranchKey(w.Xprv, InternalBranch, 0)
	require.NoError(t, err)
	fundingAddr, err := AddressFromPrivateKey(funding)
	require.NoError(t, err)

	assert.NotEqual(t, receive, fundingAddr)
}

func TestDeriveRejectsMalformedKeys(t *testing.T) {
	w := testWallet(t)

	_, err := DeriveAddress("xpub-not-a-key", 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyMaterial))

	_, err = DerivePrivateKey(w.Xpub, 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyMaterial))

	_, err = DeriveAddress(w.Xpub, 1<<31)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyMaterial))
}

func TestParseAddressAcceptsPrefixlessForm(t *testing.T) {
	w := testWallet(t)
	addr, err := DeriveAddress(w.Xpub, 3)
	require.NoError(t, err)

	_, err = ParseAddress(addr)
	require.NoError(t, err)
	_, err = ParseAddress(strings.TrimPrefix(addr, CashAddrPrefix+":"))
	require.NoError(t, err)

	_, err = ParseAddress("bitcoincash:notanaddress")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidKeyMaterial))
}
