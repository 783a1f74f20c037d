package testing

import (
	"crypto/sha512"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/railpay/paymentsd/internal/core/engine"
)

// Account represents a test account with a keypair and ledger address.
type Account struct {
	// Name is a human-readable identifier for the account (used for
	// debugging and deterministic key derivation).
	Name string

	// Address is the ledger address derived from the public key.
	Address string

	priv *secp256k1.PrivateKey
}

// NewAccount creates a test account with a deterministic keypair derived
// from the name. Using the same name always produces the same account,
// making tests reproducible.
func NewAccount(name string) *Account {
	seed := sha512.Sum512([]byte("paymentsd-test-account/" + name))
	priv := secp256k1.PrivKeyFromBytes(seed[:32])
	return &Account{
		Name:    name,
		Address: engine.DeriveAddress(priv.PubKey()),
		priv:    priv,
	}
}

// PublicKey returns the account's secp256k1 public key.
func (a *Account) PublicKey() *secp256k1.PublicKey {
	return a.priv.PubKey()
}

// SignDeposit fills in the signature for a deposit authorization moving
// funds out of this account's custody balance.
func (a *Account) SignDeposit(token, beneficiary string, amount *big.Int, nonce uint64) engine.DepositAuthorization {
	auth := engine.DepositAuthorization{
		Token:       token,
		Beneficiary: beneficiary,
		Amount:      amount,
		Nonce:       nonce,
	}
	auth.Signature = engine.SignAuthorization(a.priv, auth)
	return auth
}
