package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnonymousEnvelopeRoundTrip(t *testing.T) {
	env, err := NewAnonymousEnvelope("hello")
	require.NoError(t, err)

	var out string
	require.NoError(t, env.DecodePayload(&out))
	require.Equal(t, "hello", out)
	require.Empty(t, env.Signature())
}

func TestSignedEnvelopeMarshalUnmarshalRoundTrip(t *testing.T) {
	id, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	env, err := NewUnsignedEnvelope(map[string]int{"x": 1})
	require.NoError(t, err)
	signed, err := id.Sign1(env)
	require.NoError(t, err)

	wire, err := signed.MarshalCBOR()
	require.NoError(t, err)

	decoded, err := UnmarshalEnvelope(wire)
	require.NoError(t, err)

	pub, _ := id.PublicKey()
	require.NoError(t, decoded.VerifyWith(pub))

	var payload map[string]int
	require.NoError(t, decoded.DecodePayload(&payload))
	require.Equal(t, 1, payload["x"])
}

func TestEnvelopeVerifyWithRejectsWrongKey(t *testing.T) {
	id, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	env, err := NewUnsignedEnvelope("payload")
	require.NoError(t, err)
	signed, err := id.Sign1(env)
	require.NoError(t, err)

	other, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	otherPub, _ := other.PublicKey()

	require.Error(t, signed.VerifyWith(otherPub))
}
