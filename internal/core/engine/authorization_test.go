package engine

import (
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T) (*secp256k1.PrivateKey, string) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return priv, DeriveAddress(priv.PubKey())
}

func TestDepositWithAuthorization(t *testing.T) {
	e, _ := newTestEngine(t)
	priv, signer := newSigner(t)
	e.Custody().Mint(tokUSD, signer, big.NewInt(5_000))

	auth := DepositAuthorization{
		Token:       tokUSD,
		Beneficiary: bob,
		Amount:      big.NewInt(1_200),
		Nonce:       0,
	}
	auth.Signature = SignAuthorization(priv, auth)

	// Anyone can relay; funds move from the signer's custody.
	received, err := e.DepositWithAuthorization(auth)
	require.NoError(t, err)
	requireAmount(t, 1_200, received)
	requireAmount(t, 1_200, funds(e, bob))
	requireAmount(t, 3_800, e.Custody().Balance(tokUSD, signer))
	require.Equal(t, uint64(1), e.AuthorizationNonce(signer))
}

func TestDepositAuthorizationReplayRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	priv, signer := newSigner(t)
	e.Custody().Mint(tokUSD, signer, big.NewInt(5_000))

	auth := DepositAuthorization{Token: tokUSD, Beneficiary: bob, Amount: big.NewInt(100), Nonce: 0}
	auth.Signature = SignAuthorization(priv, auth)

	_, err := e.DepositWithAuthorization(auth)
	require.NoError(t, err)

	_, err = e.DepositWithAuthorization(auth)
	require.ErrorIs(t, err, ErrAuthorizationReplayed)
	requireAmount(t, 100, funds(e, bob))
}

func TestDepositAuthorizationNoncesAreSequential(t *testing.T) {
	e, _ := newTestEngine(t)
	priv, signer := newSigner(t)
	e.Custody().Mint(tokUSD, signer, big.NewInt(5_000))

	// Skipping ahead is rejected; the gap is not reserved.
	skipped := DepositAuthorization{Token: tokUSD, Beneficiary: bob, Amount: big.NewInt(100), Nonce: 2}
	skipped.Signature = SignAuthorization(priv, skipped)
	_, err := e.DepositWithAuthorization(skipped)
	require.ErrorIs(t, err, ErrAuthorizationReplayed)

	for nonce := uint64(0); nonce < 3; nonce++ {
		auth := DepositAuthorization{Token: tokUSD, Beneficiary: bob, Amount: big.NewInt(100), Nonce: nonce}
		auth.Signature = SignAuthorization(priv, auth)
		_, err := e.DepositWithAuthorization(auth)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(3), e.AuthorizationNonce(signer))
}

func TestDepositAuthorizationTamperedFields(t *testing.T) {
	e, _ := newTestEngine(t)
	priv, signer := newSigner(t)
	e.Custody().Mint(tokUSD, signer, big.NewInt(5_000))

	auth := DepositAuthorization{Token: tokUSD, Beneficiary: bob, Amount: big.NewInt(100), Nonce: 0}
	auth.Signature = SignAuthorization(priv, auth)

	// Raising the amount after signing recovers a different key, whose
	// nonce sequence has never started.
	auth.Amount = big.NewInt(4_000)
	_, err := e.DepositWithAuthorization(auth)
	require.Error(t, err)
	requireAmount(t, 5_000, e.Custody().Balance(tokUSD, signer))
}

func TestDepositAuthorizationMalformedSignature(t *testing.T) {
	e, _ := newTestEngine(t)

	auth := DepositAuthorization{
		Token:       tokUSD,
		Beneficiary: bob,
		Amount:      big.NewInt(100),
		Nonce:       0,
		Signature:   []byte("not a signature"),
	}
	_, err := e.DepositWithAuthorization(auth)
	require.ErrorIs(t, err, ErrBadAuthorization)
}

func TestDeriveAddressIsStable(t *testing.T) {
	priv, addr := newSigner(t)
	require.Equal(t, addr, DeriveAddress(priv.PubKey()))
	require.Len(t, addr, 2+40) // "pr" + hex ripemd160
	require.Equal(t, "pr", addr[:2])

	_, otherAddr := newSigner(t)
	require.NotEqual(t, addr, otherAddr)
}
