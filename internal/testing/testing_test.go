package testing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsAreDeterministic(t *testing.T) {
	a1 := NewAccount("alice")
	a2 := NewAccount("alice")
	b := NewAccount("bob")

	assert.Equal(t, a1.Address, a2.Address)
	assert.NotEqual(t, a1.Address, b.Address)
}

func TestEnvSettlementScenario(t *testing.T) {
	env := NewTestEnv(t)

	alice := env.Account("alice")
	bob := env.Account("bob")
	operator := env.Account("operator")

	env.Fund("tok-usd", 100_000, alice)
	env.Approve(alice, operator, "tok-usd", 1_000_000, 1_000_000, 100)

	railID := env.OpenRail(operator, alice, bob, "tok-usd")
	env.SetRate(operator, railID, 500)
	env.Advance(10)

	result := env.Settle(operator, railID, 10)
	require.Equal(t, "5000", result.TotalSettled.String())

	RequireSettledUpTo(t, env, railID, 10)
	// 1% network fee skimmed before the payee is credited.
	RequireFunds(t, env, "tok-usd", bob, "4950")
	RequireFunds(t, env, "tok-usd", alice, "95000")
	RequireFinalized(t, env, railID, false)
}

func TestEnvSignedDeposit(t *testing.T) {
	env := NewTestEnv(t)

	carol := env.Account("carol")
	env.Engine.Custody().Mint("tok-usd", carol.Address, big.NewInt(1_000))

	nonce := env.Engine.AuthorizationNonce(carol.Address)
	auth := carol.SignDeposit("tok-usd", carol.Address, big.NewInt(400), nonce)

	received, err := env.Engine.DepositWithAuthorization(auth)
	require.NoError(t, err)
	assert.Equal(t, "400", received.String())
	RequireFunds(t, env, "tok-usd", carol, "400")
}
