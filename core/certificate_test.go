package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCertificateSignAndVerify(t *testing.T) {
	from, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	to, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	cert := NewCertificate(from.Address(), []Address{to.Address()}, time.Now().Add(time.Hour))
	env, err := cert.Sign(from)
	require.NoError(t, err)

	fromPub, _ := from.PublicKey()
	got, err := DecodeAndVerify(env, Ed25519Verifier{PublicKey: fromPub}, time.Now(), true)
	require.NoError(t, err)
	require.True(t, got.ToSet(to.Address()))
}

func TestCertificateSignRejectsWrongSigner(t *testing.T) {
	from, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	someoneElse, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	cert := NewCertificate(from.Address(), nil, time.Now().Add(time.Hour))
	_, err = cert.Sign(someoneElse)
	require.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestDecodeAndVerifyRejectsExpired(t *testing.T) {
	from, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	cert := NewCertificate(from.Address(), nil, time.Now().Add(-time.Minute))
	env, err := cert.Sign(from)
	require.NoError(t, err)

	pub, _ := from.PublicKey()
	_, err = DecodeAndVerify(env, Ed25519Verifier{PublicKey: pub}, time.Now(), true)
	require.ErrorIs(t, err, ErrCertificateExpired)
}

func TestDecodeAndVerifyRejectsFinalNotLast(t *testing.T) {
	from, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	cert := NewCertificate(from.Address(), nil, time.Now().Add(time.Hour))
	cert.Final = true
	env, err := cert.Sign(from)
	require.NoError(t, err)

	pub, _ := from.PublicKey()
	_, err = DecodeAndVerify(env, Ed25519Verifier{PublicKey: pub}, time.Now(), false)
	require.ErrorIs(t, err, ErrCertificateFinalNotLast)
}

func TestDecodeAndVerifyTreatsAbsentThresholdAsOne(t *testing.T) {
	from, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	cert := NewCertificate(from.Address(), nil, time.Now().Add(time.Hour))
	require.Nil(t, cert.Threshold)
	require.Equal(t, uint64(1), cert.EffectiveThreshold())

	env, err := cert.Sign(from)
	require.NoError(t, err)

	pub, _ := from.PublicKey()
	got, err := DecodeAndVerify(env, Ed25519Verifier{PublicKey: pub}, time.Now(), true)
	require.NoError(t, err)
	require.Nil(t, got.Threshold)
	require.Equal(t, uint64(1), got.EffectiveThreshold())
}

func TestDecodeAndVerifyRejectsExplicitZeroThreshold(t *testing.T) {
	from, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	cert := NewCertificate(from.Address(), nil, time.Now().Add(time.Hour)).WithThreshold(0)
	env, err := cert.Sign(from)
	require.NoError(t, err)

	pub, _ := from.PublicKey()
	_, err = DecodeAndVerify(env, Ed25519Verifier{PublicKey: pub}, time.Now(), true)
	require.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestDecodeAndVerifyAcceptsExplicitNonZeroThreshold(t *testing.T) {
	from, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	cert := NewCertificate(from.Address(), nil, time.Now().Add(time.Hour)).WithThreshold(3)
	env, err := cert.Sign(from)
	require.NoError(t, err)

	pub, _ := from.PublicKey()
	got, err := DecodeAndVerify(env, Ed25519Verifier{PublicKey: pub}, time.Now(), true)
	require.NoError(t, err)
	require.Equal(t, uint64(3), got.EffectiveThreshold())
}

func TestResolveDelegationChainValid(t *testing.T) {
	root, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	mid, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	leaf, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	c1 := NewCertificate(root.Address(), []Address{mid.Address()}, time.Now().Add(time.Hour))
	env1, err := c1.Sign(root)
	require.NoError(t, err)

	c2 := NewCertificate(mid.Address(), []Address{leaf.Address()}, time.Now().Add(time.Hour))
	c2.Final = true
	env2, err := c2.Sign(mid)
	require.NoError(t, err)

	rootPub, _ := root.PublicKey()
	midPub, _ := mid.PublicKey()
	verifier := OneOf{Ed25519Verifier{PublicKey: rootPub}, Ed25519Verifier{PublicKey: midPub}}

	chain, err := ResolveDelegationChain([]*Envelope{env1, env2}, verifier, time.Now())
	require.NoError(t, err)
	require.Equal(t, []Address{leaf.Address()}, chain.EffectivePrincipals())
}

func TestResolveDelegationChainRejectsBrokenLink(t *testing.T) {
	root, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	mid, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	unrelated, err := NewEd25519Identity(nil)
	require.NoError(t, err)
	leaf, err := NewEd25519Identity(nil)
	require.NoError(t, err)

	c1 := NewCertificate(root.Address(), []Address{mid.Address()}, time.Now().Add(time.Hour))
	env1, err := c1.Sign(root)
	require.NoError(t, err)

	// signed by unrelated, not mid: the chain link is broken.
	c2 := NewCertificate(unrelated.Address(), []Address{leaf.Address()}, time.Now().Add(time.Hour))
	env2, err := c2.Sign(unrelated)
	require.NoError(t, err)

	rootPub, _ := root.PublicKey()
	unrelatedPub, _ := unrelated.PublicKey()
	verifier := OneOf{Ed25519Verifier{PublicKey: rootPub}, Ed25519Verifier{PublicKey: unrelatedPub}}

	_, err = ResolveDelegationChain([]*Envelope{env1, env2}, verifier, time.Now())
	require.ErrorIs(t, err, ErrDelegationLinkBroken)
}

func TestThresholdCacheAccumulates(t *testing.T) {
	tc := NewThresholdCache()
	var subject, s1, s2 Address
	subject[0], s1[0], s2[0] = 1, 2, 3

	require.False(t, tc.Accumulate(subject, s1, 2))
	require.Equal(t, 1, tc.Count(subject))
	require.True(t, tc.Accumulate(subject, s2, 2))
	require.True(t, tc.Accumulate(subject, s2, 2)) // re-accumulating the same signer keeps the threshold met
	require.Equal(t, 2, tc.Count(subject))          // but does not inflate the distinct-signer count

	tc.Reset(subject)
	require.Equal(t, 0, tc.Count(subject))
}
