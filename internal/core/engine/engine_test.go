package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Shared fixtures. Addresses are free-form strings, as on the wire.
const (
	tokUSD = "tok:usd"
	alice  = "addr:alice" // payer
	bob    = "addr:bob"   // payee
	carol  = "addr:carol" // service fee recipient
	opr    = "addr:operator"
	keeper = "addr:keeper"
)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestEngine builds an engine with the production 1% network fee, a
// small auction start price, and a deterministic clock. alice's custody
// is pre-funded.
func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()
	clock := newTestClock()
	cfg := DefaultConfig()
	cfg.AuctionInitialPrice = big.NewInt(1000)
	e := New(cfg, WithClock(clock.Now))
	e.Custody().Mint(tokUSD, alice, big.NewInt(1_000_000))
	return e, clock
}

// setupRail deposits 50_000 for alice, approves the operator with wide
// allowances, and creates one plain alice→bob rail.
func setupRail(t *testing.T, e *Engine) uint64 {
	t.Helper()
	mustDeposit(t, e, alice, 50_000)
	mustApprove(t, e)

	id, err := e.CreateRail(opr, tokUSD, alice, bob, "", 0, "")
	require.NoError(t, err)
	return id
}

func mustApprove(t *testing.T, e *Engine) {
	t.Helper()
	err := e.SetOperatorApproval(alice, tokUSD, opr, true,
		big.NewInt(1_000_000), big.NewInt(1_000_000), 100)
	require.NoError(t, err)
}

func mustDeposit(t *testing.T, e *Engine, owner string, amount int64) {
	t.Helper()
	_, err := e.Deposit(owner, tokUSD, owner, big.NewInt(amount))
	require.NoError(t, err)
}

func mustSetRate(t *testing.T, e *Engine, railID uint64, rate int64) {
	t.Helper()
	require.NoError(t, e.ModifyRailPayment(opr, railID, big.NewInt(rate), nil))
}

func funds(e *Engine, owner string) *big.Int {
	return e.GetAccountInfo(tokUSD, owner).Funds
}

// requireAmount compares big.Int values by decimal string, so zero
// representations never trip reflect.DeepEqual.
func requireAmount(t *testing.T, want int64, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, big.NewInt(want).String(), got.String())
}

// collectSink records emitted events for assertions.
type collectSink struct {
	events []Event
}

func (s *collectSink) Emit(ev Event) { s.events = append(s.events, ev) }

func (s *collectSink) kinds() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind()
	}
	return out
}
