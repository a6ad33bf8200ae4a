package core

// Envelope wraps a COSE_Sign1 message (github.com/veraison/go-cose) carrying
// an address in the protected key-id header and a CBOR payload, following
// the same style the forestrie merkle log uses for its signed receipts
// (massifs/cose/cose.go): a thin struct around *cose.Sign1Message plus
// deterministic encode/decode helpers.

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// Envelope is a COSE_Sign1 message whose protected key-id header carries the
// signer's address and whose payload is CBOR-encoded application data.
type Envelope struct {
	msg *cose.Sign1Message
}

// NewUnsignedEnvelope builds an envelope around a CBOR-encodable payload,
// with no signature applied yet.
func NewUnsignedEnvelope(payload any) (*Envelope, error) {
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return &Envelope{msg: &cose.Sign1Message{
		Headers: cose.Headers{Protected: cose.ProtectedHeader{}},
		Payload: raw,
	}}, nil
}

// NewAnonymousEnvelope builds an envelope with an empty key-id and an empty
// signature, matching the degenerate no-crypto shape AnonymousVerifier
// accepts.
func NewAnonymousEnvelope(payload any) (*Envelope, error) {
	env, err := NewUnsignedEnvelope(payload)
	if err != nil {
		return nil, err
	}
	env.msg.Headers.Protected[cose.HeaderLabelKeyID] = []byte{}
	env.msg.Signature = []byte{}
	return env, nil
}

// SignEnvelope signs env with priv, stamping addr into the protected key-id
// header.
func SignEnvelope(env *Envelope, addr Address, priv ed25519.PrivateKey) (*Envelope, error) {
	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, priv)
	if err != nil {
		return nil, fmt.Errorf("cose signer: %w", err)
	}
	msg := *env.msg
	msg.Headers.Protected = cose.ProtectedHeader{}
	for k, v := range env.msg.Headers.Protected {
		msg.Headers.Protected[k] = v
	}
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = cose.AlgorithmEdDSA
	msg.Headers.Protected[cose.HeaderLabelKeyID] = addr.Bytes()

	if err := msg.Sign(crand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("cose sign: %w", err)
	}
	return &Envelope{msg: &msg}, nil
}

// KeyID returns the raw key-id bytes carried in the protected header, or nil
// if absent.
func (e *Envelope) KeyID() []byte {
	v, ok := e.msg.Headers.Protected[cose.HeaderLabelKeyID]
	if !ok {
		return nil
	}
	b, _ := v.([]byte)
	return b
}

// Signature returns the raw signature bytes (empty for an anonymous
// envelope).
func (e *Envelope) Signature() []byte { return e.msg.Signature }

// Payload returns the raw CBOR payload bytes.
func (e *Envelope) Payload() []byte { return e.msg.Payload }

// DecodePayload CBOR-decodes the envelope payload into out.
func (e *Envelope) DecodePayload(out any) error {
	if err := cbor.Unmarshal(e.msg.Payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return nil
}

// VerifyWith checks the envelope's signature against pub and returns nil on
// success.
func (e *Envelope) VerifyWith(pub ed25519.PublicKey) error {
	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, pub)
	if err != nil {
		return fmt.Errorf("cose verifier: %w", err)
	}
	if err := e.msg.Verify(nil, verifier); err != nil {
		return fmt.Errorf("%w: %v", ErrCouldNotVerifySignature, err)
	}
	return nil
}

// MarshalCBOR encodes the envelope to its wire form.
func (e *Envelope) MarshalCBOR() ([]byte, error) {
	return e.msg.MarshalCBOR()
}

// UnmarshalEnvelope decodes an envelope from its CBOR wire form.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return &Envelope{msg: &msg}, nil
}

func sha256Sum(b []byte) [32]byte {
	return sha256.Sum256(b)
}
