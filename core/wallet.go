package core

// Hierarchical deterministic key derivation for Ed25519Identity, using
// SLIP-0010 hardened derivation over a BIP-39 mnemonic. This package's
// Address is 32 bytes derived by AddressFromPublicKey, so HDWallet hands
// back an Identity rather than a raw key.
//
// Import hygiene: depends only on crypto, bip39, and logrus, same tier as
// identity.go.

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"

	log "github.com/sirupsen/logrus"

	"crypto/ed25519"
)

const (
	hardenedOffset uint32 = 0x80000000
	masterHMACKey         = "ed25519 seed" // SLIP-0010 master-key string
)

// HDWallet keeps master key material in memory only. Never persist the
// private fields directly; use an encrypted keystore instead.
//
// Derivation model: SLIP-0010 hardened children only, path m / account' /
// index' (ed25519 does not support unhardened children).
type HDWallet struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
	logger      *log.Logger
}

// Seed returns a copy of the wallet's master seed. Callers should securely
// wipe the returned slice after use.
func (w *HDWallet) Seed() []byte {
	out := make([]byte, len(w.seed))
	copy(out, w.seed)
	return out
}

// NewRandomWallet generates entropyBits (128/256) of RNG entropy and
// returns a wallet plus its BIP-39 mnemonic. The caller must wipe or
// securely store the mnemonic.
func NewRandomWallet(entropyBits int, lg *log.Logger) (*HDWallet, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	w, err := NewHDWalletFromSeed(seed, lg)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// WalletFromMnemonic imports an existing BIP-39 phrase.
func WalletFromMnemonic(mnemonic, passphrase string, lg *log.Logger) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewHDWalletFromSeed(seed, lg)
}

// NewHDWalletFromSeed derives the SLIP-0010 master key from a raw seed.
func NewHDWalletFromSeed(seed []byte, lg *log.Logger) (*HDWallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	if lg == nil {
		lg = log.New()
	}
	i := hmacSHA512([]byte(masterHMACKey), seed)
	w := &HDWallet{seed: seed, masterKey: i[:32], masterChain: i[32:], logger: lg}
	lg.Infof("wallet: master key initialized (%d bytes seed)", len(seed))
	return w, nil
}

// derivePrivate returns the key material and new chain code for a hardened
// index. Only hardened derivation is supported for ed25519.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)

	i := hmacSHA512(parentChain, data)
	return i[:32], i[32:], nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// PrivateKey derives the ed25519 key pair at path m / account' / index'.
func (w *HDWallet) PrivateKey(account, index uint32) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	account |= hardenedOffset
	index |= hardenedOffset

	k1, c1, err := derivePrivate(w.masterKey, w.masterChain, account)
	if err != nil {
		return nil, nil, err
	}
	k2, _, err := derivePrivate(k1, c1, index)
	if err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

// Identity derives the Ed25519Identity at path m / account' / index',
// ready to sign envelopes under AddressFromPublicKey's derivation.
func (w *HDWallet) Identity(account, index uint32) (*Ed25519Identity, error) {
	priv, pub, err := w.PrivateKey(account, index)
	if err != nil {
		return nil, err
	}
	return NewEd25519IdentityFromKey(pub, priv, w.logger), nil
}

// RandomMnemonicEntropy produces cryptographically secure random entropy of
// the given number of bits.
func RandomMnemonicEntropy(bits int) ([]byte, error) {
	if bits%32 != 0 {
		return nil, errors.New("entropy bits must be multiple of 32")
	}
	b := make([]byte, bits/8)
	if _, err := crand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe zeroes a byte slice in place (best effort; the GC may still have
// copied it).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
