package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventStream(t *testing.T) {
	sink := &collectSink{}
	clock := newTestClock()
	cfg := DefaultConfig()
	cfg.AuctionInitialPrice = big.NewInt(1000)
	e := New(cfg, WithClock(clock.Now), WithSink(sink))
	e.Custody().Mint(tokUSD, alice, big.NewInt(1_000_000))

	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	e.AdvanceEpochs(4)
	require.NoError(t, e.TerminateRail(alice, id))
	_, err := e.SettleRail(bob, id, 4)
	require.NoError(t, err)

	require.Equal(t, []string{
		"account.deposit",
		"operator.approval",
		"rail.created",
		"rail.rate_modified",
		"rail.terminated",
		"fees.auction_restarted", // first fees open the auction
		"rail.settled",
		"rail.finalized",
	}, sink.kinds())
}

func TestEventPayloads(t *testing.T) {
	sink := &collectSink{}
	clock := newTestClock()
	e := New(DefaultConfig(), WithClock(clock.Now), WithSink(sink))
	e.Custody().Mint(tokUSD, alice, big.NewInt(1_000_000))

	_, err := e.Deposit(alice, tokUSD, bob, big.NewInt(1_000))
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	dep, ok := sink.events[0].(DepositEvent)
	require.True(t, ok)
	require.Equal(t, alice, dep.From)
	require.Equal(t, bob, dep.Beneficiary)
	requireAmount(t, 1_000, dep.Received)
}
