package testing

import (
	"math/big"
	"testing"

	"github.com/railpay/paymentsd/internal/core/engine"
)

// TestEnv manages a settlement engine for rail testing. It provides a
// simplified interface for creating accounts, funding them, opening
// rails and settling them, with fatal errors instead of error returns
// so tests read as straight-line scenarios.
type TestEnv struct {
	t *testing.T

	// Engine is the wrapped engine, exposed for operations the helpers
	// do not cover.
	Engine *engine.Engine

	accounts map[string]*Account
}

// NewTestEnv creates a test environment with the default engine
// configuration.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return NewTestEnvWithConfig(t, engine.DefaultConfig())
}

// NewTestEnvWithConfig creates a test environment over a custom engine
// configuration.
func NewTestEnvWithConfig(t *testing.T, cfg engine.Config) *TestEnv {
	t.Helper()
	return &TestEnv{
		t:        t,
		Engine:   engine.New(cfg),
		accounts: make(map[string]*Account),
	}
}

// Account returns the deterministic account for a name, creating it on
// first use.
func (env *TestEnv) Account(name string) *Account {
	if acc, ok := env.accounts[name]; ok {
		return acc
	}
	acc := NewAccount(name)
	env.accounts[name] = acc
	return acc
}

// Fund mints token into custody for each account and deposits it into
// their ledger balance.
func (env *TestEnv) Fund(token string, amount int64, accounts ...*Account) {
	env.t.Helper()
	for _, acc := range accounts {
		env.Engine.Custody().Mint(token, acc.Address, big.NewInt(amount))
		if _, err := env.Engine.Deposit(acc.Address, token, acc.Address, big.NewInt(amount)); err != nil {
			env.t.Fatalf("fund %s with %d %s: %v", acc.Name, amount, token, err)
		}
	}
}

// MintNative credits native token custody balances, for burn auction
// scenarios.
func (env *TestEnv) MintNative(amount int64, accounts ...*Account) {
	for _, acc := range accounts {
		env.Engine.Custody().Mint("", acc.Address, big.NewInt(amount))
	}
}

// Approve grants an operator the given allowances over the owner's
// funds.
func (env *TestEnv) Approve(owner, operator *Account, token string, rateAllowance, lockupAllowance int64, maxLockupPeriod uint64) {
	env.t.Helper()
	err := env.Engine.SetOperatorApproval(owner.Address, token, operator.Address, true,
		big.NewInt(rateAllowance), big.NewInt(lockupAllowance), maxLockupPeriod)
	if err != nil {
		env.t.Fatalf("approve %s as operator for %s: %v", operator.Name, owner.Name, err)
	}
}

// OpenRail creates a rail without commission or validator and returns
// its id.
func (env *TestEnv) OpenRail(operator, from, to *Account, token string) uint64 {
	env.t.Helper()
	railID, err := env.Engine.CreateRail(operator.Address, token, from.Address, to.Address, "", 0, "")
	if err != nil {
		env.t.Fatalf("open rail %s -> %s: %v", from.Name, to.Name, err)
	}
	return railID
}

// SetRate changes a rail's payment rate.
func (env *TestEnv) SetRate(operator *Account, railID uint64, rate int64) {
	env.t.Helper()
	if err := env.Engine.ModifyRailPayment(operator.Address, railID, big.NewInt(rate), nil); err != nil {
		env.t.Fatalf("set rate %d on rail %d: %v", rate, railID, err)
	}
}

// Settle settles a rail up to the given epoch.
func (env *TestEnv) Settle(caller *Account, railID, upToEpoch uint64) engine.SettlementResult {
	env.t.Helper()
	result, err := env.Engine.SettleRail(caller.Address, railID, upToEpoch)
	if err != nil {
		env.t.Fatalf("settle rail %d up to %d: %v", railID, upToEpoch, err)
	}
	return result
}

// Advance moves the engine clock forward n epochs and returns the new
// current epoch.
func (env *TestEnv) Advance(n uint64) uint64 {
	return env.Engine.AdvanceEpochs(n)
}

// Funds returns an account's available ledger balance for a token.
func (env *TestEnv) Funds(token string, acc *Account) *big.Int {
	return env.Engine.GetAccountInfo(token, acc.Address).Funds
}

// Rail returns the rail's current state.
func (env *TestEnv) Rail(railID uint64) engine.RailView {
	env.t.Helper()
	view, err := env.Engine.GetRail(railID)
	if err != nil {
		env.t.Fatalf("get rail %d: %v", railID, err)
	}
	return view
}
