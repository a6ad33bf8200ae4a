package core

// Identity is the cryptographic capability that backs an address: it can be
// asked for its address, its public key (if one exists), and it can sign a
// COSE_Sign1 envelope on behalf of that address.
//
// Import hygiene: identity depends only on crypto, the envelope codec, and
// logrus. It
// does not depend on storage, the module library, or the wasm host.

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Identity is polymorphic over the concrete signing algorithm. Any owning
// handle to an Identity (a pointer, an interface value copied around) must
// behave identically to the inner identity; implementations here satisfy
// that by being safe to copy or by forwarding through a pointer receiver.
type Identity interface {
	Address() Address
	PublicKey() (ed25519.PublicKey, bool)
	Sign1(env *Envelope) (*Envelope, error)
}

// AnonymousIdentity is the degenerate no-crypto identity: it reports the
// anonymous address, has no public key, and passes envelopes through
// unmodified.
type AnonymousIdentity struct{}

func (AnonymousIdentity) Address() Address { return AddressAnonymous }

func (AnonymousIdentity) PublicKey() (ed25519.PublicKey, bool) { return nil, false }

func (AnonymousIdentity) Sign1(env *Envelope) (*Envelope, error) {
	return env, nil
}

// Ed25519Identity signs envelopes with an Ed25519 key pair, following the
// same "seed in memory, never persisted raw" discipline as the node's HD
// wallet.
type Ed25519Identity struct {
	addr    Address
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
	logger  *log.Logger
}

// NewEd25519Identity generates a fresh Ed25519 key pair and derives its
// address by hashing the public key.
func NewEd25519Identity(lg *log.Logger) (*Ed25519Identity, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return NewEd25519IdentityFromKey(pub, priv, lg), nil
}

// NewEd25519IdentityFromKey wraps an existing Ed25519 key pair.
func NewEd25519IdentityFromKey(pub ed25519.PublicKey, priv ed25519.PrivateKey, lg *log.Logger) *Ed25519Identity {
	if lg == nil {
		lg = log.New()
	}
	id := &Ed25519Identity{pub: pub, priv: priv, logger: lg}
	id.addr = AddressFromPublicKey(pub)
	return id
}

// AddressFromPublicKey derives an address by hashing a raw Ed25519 public
// key and tagging the principal subaddress byte as zero (the canonical
// subaddress).
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	sum := sha256Sum(pub)
	var a Address
	copy(a[:subaddressByte], sum[:subaddressByte])
	return a
}

func (id *Ed25519Identity) Address() Address { return id.addr }

func (id *Ed25519Identity) PublicKey() (ed25519.PublicKey, bool) { return id.pub, true }

func (id *Ed25519Identity) Sign1(env *Envelope) (*Envelope, error) {
	signed, err := SignEnvelope(env, id.addr, id.priv)
	if err != nil {
		id.logger.WithError(err).Warn("identity: sign_1 failed")
		return nil, fmt.Errorf("%w: %v", ErrCouldNotVerifySignature, err)
	}
	return signed, nil
}

// IdentityHandle is a thin adapter that forwards the three Identity methods
// from an owning pointer, satisfying the "any owning handle to an Identity
// is itself an Identity" delegation contract without relying on language
// support for blanket trait impls.
type IdentityHandle struct {
	Inner Identity
}

func (h IdentityHandle) Address() Address                          { return h.Inner.Address() }
func (h IdentityHandle) PublicKey() (ed25519.PublicKey, bool)       { return h.Inner.PublicKey() }
func (h IdentityHandle) Sign1(env *Envelope) (*Envelope, error)     { return h.Inner.Sign1(env) }
