package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnonymousVerifierAcceptsEmptyEnvelope(t *testing.T) {
	env, err := NewAnonymousEnvelope(map[string]string{"hello": "world"})
	require.NoError(t, err)

	addr, err := AnonymousVerifier{}.Verify(env)
	require.NoError(t, err)
	require.Equal(t, AddressAnonymous, addr)
}

func TestAnonymousVerifierRejectsNonEmptySignature(t *testing.T) {
	id, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	env, err := NewUnsignedEnvelope("payload")
	require.NoError(t, err)
	signed, err := id.Sign1(env)
	require.NoError(t, err)

	_, err = AnonymousVerifier{}.Verify(signed)
	require.Error(t, err)
}

func TestEd25519VerifierRoundTrip(t *testing.T) {
	id, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	env, err := NewUnsignedEnvelope("payload")
	require.NoError(t, err)
	signed, err := id.Sign1(env)
	require.NoError(t, err)

	pub, ok := id.PublicKey()
	require.True(t, ok)

	addr, err := (Ed25519Verifier{PublicKey: pub}).Verify(signed)
	require.NoError(t, err)
	require.Equal(t, id.Address(), addr)
}

func TestEd25519VerifierRejectsWrongKey(t *testing.T) {
	id, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	other, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	env, err := NewUnsignedEnvelope("payload")
	require.NoError(t, err)
	signed, err := id.Sign1(env)
	require.NoError(t, err)

	otherPub, _ := other.PublicKey()
	_, err = (Ed25519Verifier{PublicKey: otherPub}).Verify(signed)
	require.Error(t, err)
}

func TestOneOfTriesEachInOrderAndAggregatesFailures(t *testing.T) {
	env, err := NewAnonymousEnvelope("payload")
	require.NoError(t, err)

	one := OneOf{ErrorVerifier{Message: "first"}, ErrorVerifier{Message: "second"}}
	_, err = one.Verify(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "first")
	require.Contains(t, err.Error(), "second")

	two := OneOf{ErrorVerifier{Message: "first"}, AnonymousVerifier{}}
	addr, err := two.Verify(env)
	require.NoError(t, err)
	require.Equal(t, AddressAnonymous, addr)
}
