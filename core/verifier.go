package core

// Verifier composition: small, composable units tried in a fixed order,
// with the first success winning.

import (
	"crypto/ed25519"
	"fmt"
	"strings"
)

// Verifier consumes a signed envelope and returns the address that signed
// it, or fails.
type Verifier interface {
	Verify(env *Envelope) (Address, error)
}

// ErrorVerifier always fails. It is the identity element for OneOf
// composition.
type ErrorVerifier struct{ Message string }

func (v ErrorVerifier) Verify(*Envelope) (Address, error) {
	msg := v.Message
	if msg == "" {
		msg = "error verifier"
	}
	return Address{}, fmt.Errorf("%w: %s", ErrCouldNotVerifySignature, msg)
}

// AnonymousVerifier accepts only the degenerate no-crypto envelope shapes:
// an empty key-id with an empty signature, or a key-id that decodes to the
// anonymous address with an empty signature.
type AnonymousVerifier struct{}

func (AnonymousVerifier) Verify(env *Envelope) (Address, error) {
	if len(env.Signature()) != 0 {
		return Address{}, fmt.Errorf("%w: anonymous verifier requires empty signature", ErrCouldNotVerifySignature)
	}
	kid := env.KeyID()
	if len(kid) == 0 {
		return AddressAnonymous, nil
	}
	addr, err := AddressFromBytes(kid)
	if err != nil || !addr.IsAnonymous() {
		return Address{}, fmt.Errorf("%w: key-id does not decode to anonymous address", ErrCouldNotVerifySignature)
	}
	return AddressAnonymous, nil
}

// Ed25519Verifier verifies envelopes against a known public key. On success
// it returns the envelope's key-id address, which matches the address
// derived from that key up to the subaddress byte.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

func (v Ed25519Verifier) Verify(env *Envelope) (Address, error) {
	if err := env.VerifyWith(v.PublicKey); err != nil {
		return Address{}, err
	}
	want := AddressFromPublicKey(v.PublicKey)
	got, err := AddressFromBytes(env.KeyID())
	if err != nil || !got.Matches(want) {
		return Address{}, fmt.Errorf("%w: key-id does not match verifier key", ErrCouldNotVerifySignature)
	}
	return got, nil
}

// OneOf composes a fixed tuple of verifiers, trying each in declaration
// order and returning the first success. On all-failure it returns
// could_not_verify_signature carrying each member's message, comma-joined.
type OneOf []Verifier

func (vs OneOf) Verify(env *Envelope) (Address, error) {
	var msgs []string
	for _, v := range vs {
		addr, err := v.Verify(env)
		if err == nil {
			return addr, nil
		}
		msgs = append(msgs, err.Error())
	}
	return Address{}, fmt.Errorf("%w: %s", ErrCouldNotVerifySignature, strings.Join(msgs, ", "))
}
