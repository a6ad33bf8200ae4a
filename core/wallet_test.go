package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRandomWalletProducesValidMnemonic(t *testing.T) {
	wallet, mnemonic, err := NewRandomWallet(256, nil)
	require.NoError(t, err)
	require.NotEmpty(t, mnemonic)

	recovered, err := WalletFromMnemonic(mnemonic, "", nil)
	require.NoError(t, err)
	require.Equal(t, wallet.Seed(), recovered.Seed())
}

func TestWalletFromMnemonicRejectsInvalidChecksum(t *testing.T) {
	_, err := WalletFromMnemonic("not a valid mnemonic phrase at all", "", nil)
	require.Error(t, err)
}

func TestHDWalletDerivationIsDeterministic(t *testing.T) {
	_, mnemonic, err := NewRandomWallet(128, nil)
	require.NoError(t, err)

	w1, err := WalletFromMnemonic(mnemonic, "", nil)
	require.NoError(t, err)
	w2, err := WalletFromMnemonic(mnemonic, "", nil)
	require.NoError(t, err)

	id1, err := w1.Identity(0, 0)
	require.NoError(t, err)
	id2, err := w2.Identity(0, 0)
	require.NoError(t, err)
	require.Equal(t, id1.Address(), id2.Address())
}

func TestHDWalletDerivationDiffersByIndex(t *testing.T) {
	_, mnemonic, err := NewRandomWallet(128, nil)
	require.NoError(t, err)
	w, err := WalletFromMnemonic(mnemonic, "", nil)
	require.NoError(t, err)

	id0, err := w.Identity(0, 0)
	require.NoError(t, err)
	id1, err := w.Identity(0, 1)
	require.NoError(t, err)
	require.NotEqual(t, id0.Address(), id1.Address())
}
