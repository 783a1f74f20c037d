package testing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireFunds asserts an account's available balance for a token.
// Balances are compared as decimal strings because amounts exceed
// int64 in production configurations.
func RequireFunds(t *testing.T, env *TestEnv, token string, acc *Account, expected string) {
	t.Helper()
	actual := env.Funds(token, acc).String()
	require.Equal(t, expected, actual,
		"Account %s %s balance mismatch: expected %s, got %s",
		acc.Name, token, expected, actual)
}

// RequireLockup asserts an account's current lockup for a token.
func RequireLockup(t *testing.T, env *TestEnv, token string, acc *Account, expected string) {
	t.Helper()
	info := env.Engine.GetAccountInfo(token, acc.Address)
	require.Equal(t, expected, info.LockupCurrent.String(),
		"Account %s %s lockup mismatch", acc.Name, token)
}

// RequireSettledUpTo asserts how far a rail has settled.
func RequireSettledUpTo(t *testing.T, env *TestEnv, railID, expected uint64) {
	t.Helper()
	view := env.Rail(railID)
	require.Equal(t, expected, view.SettledUpTo,
		"Rail %d settled up to %d, expected %d", railID, view.SettledUpTo, expected)
}

// RequireFinalized asserts whether a rail has been finalized.
func RequireFinalized(t *testing.T, env *TestEnv, railID uint64, expected bool) {
	t.Helper()
	view := env.Rail(railID)
	require.Equal(t, expected, view.Finalized,
		"Rail %d finalized=%v, expected %v", railID, view.Finalized, expected)
}
