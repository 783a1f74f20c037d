// Package testing provides test infrastructure for rail settlement
// testing.
//
// The package provides:
//   - TestEnv: an engine wrapper with funding and rail helpers
//   - Account: deterministic test accounts with secp256k1 keypairs
//   - Assertions: helpers for balance and rail state checks
//
// # Basic Usage
//
//	func TestSettlement(t *testing.T) {
//	    env := testing.NewTestEnv(t)
//
//	    alice := env.Account("alice")
//	    bob := env.Account("bob")
//	    operator := env.Account("operator")
//
//	    env.Fund("tok-usd", 100_000, alice)
//	    env.Approve(alice, operator, "tok-usd", 1_000_000, 1_000_000, 100)
//
//	    railID := env.OpenRail(operator, alice, bob, "tok-usd")
//	    env.SetRate(operator, railID, 500)
//	    env.Advance(10)
//
//	    result := env.Settle(operator, railID, 10)
//	    testing.RequireSettledUpTo(t, env, railID, 10)
//	    _ = result
//	}
//
// Accounts are derived deterministically from their names, so the same
// name always produces the same address across runs.
package testing
