package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/decred/dcrd/crypto/ripemd160"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// DepositAuthorization is an off-chain-signed deposit: the signer
// authorizes moving amount of token from its custody balance into the
// beneficiary's ledger account. Nonces are strictly sequential per
// signer, so an authorization can be relayed by anyone but applied once.
type DepositAuthorization struct {
	Token       string
	Beneficiary string
	Amount      *big.Int
	Nonce       uint64

	// Signature is a 65-byte compact recoverable secp256k1 signature
	// over AuthorizationDigest.
	Signature []byte
}

// AuthorizationDigest is the signed message hash for a deposit
// authorization.
func AuthorizationDigest(token, beneficiary string, amount *big.Int, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte("paymentsd/deposit-authorization/v1"))
	h.Write([]byte{0})
	h.Write([]byte(token))
	h.Write([]byte{0})
	h.Write([]byte(beneficiary))
	h.Write([]byte{0})
	h.Write(amount.Bytes())
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)
	h.Write(nb[:])

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// DeriveAddress maps a secp256k1 public key to a ledger address:
// ripemd160 over sha256 of the compressed key, hex encoded with the
// "pr" prefix.
func DeriveAddress(pub *secp256k1.PublicKey) string {
	sha := sha256.Sum256(pub.SerializeCompressed())
	r := ripemd160.New()
	r.Write(sha[:])
	return "pr" + hex.EncodeToString(r.Sum(nil))
}

// SignAuthorization produces the compact signature for an authorization
// with the given private key (client/test helper).
func SignAuthorization(priv *secp256k1.PrivateKey, auth DepositAuthorization) []byte {
	digest := AuthorizationDigest(auth.Token, auth.Beneficiary, auth.Amount, auth.Nonce)
	return ecdsa.SignCompact(priv, digest[:], true)
}

// DepositWithAuthorization applies a signed deposit. The signer is
// recovered from the signature, its address derived, its nonce checked
// and consumed, and the deposit then behaves exactly like Deposit called
// by the signer: the beneficiary is credited with the amount actually
// received from custody.
func (e *Engine) DepositWithAuthorization(auth DepositAuthorization) (*big.Int, error) {
	if auth.Amount == nil || auth.Amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	digest := AuthorizationDigest(auth.Token, auth.Beneficiary, auth.Amount, auth.Nonce)
	pub, _, err := ecdsa.RecoverCompact(auth.Signature, digest[:])
	if err != nil {
		return nil, ErrBadAuthorization
	}
	signer := DeriveAddress(pub)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.authNonces[signer] != auth.Nonce {
		return nil, ErrAuthorizationReplayed
	}

	received, err := e.depositLocked(signer, auth.Token, auth.Beneficiary, auth.Amount)
	if err != nil {
		return nil, err
	}
	e.authNonces[signer] = auth.Nonce + 1
	return received, nil
}

// AuthorizationNonce returns the next expected nonce for a signer
// address.
func (e *Engine) AuthorizationNonce(signer string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authNonces[signer]
}
