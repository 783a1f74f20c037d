package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// settleFees advances ten epochs and settles, skimming 50 fee units
// into the accumulator at rate 500 under the 1% network fee.
func settleFees(t *testing.T, e *Engine, id uint64) {
	t.Helper()
	e.AdvanceEpochs(10)
	_, err := e.SettleRail(alice, id, e.CurrentEpoch())
	require.NoError(t, err)
}

func TestAuctionStartsOnFirstFees(t *testing.T) {
	e, clock := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)

	info := e.GetAuctionInfo(tokUSD)
	require.Zero(t, info.StartTime)

	settleFees(t, e, id)

	info = e.GetAuctionInfo(tokUSD)
	requireAmount(t, 1_000, info.StartPrice)
	requireAmount(t, 1_000, info.CurrentPrice)
	requireAmount(t, 50, info.AccumulatedFees)
	require.Equal(t, clock.Now().Unix(), info.StartTime)
}

func TestAuctionPriceDecays(t *testing.T) {
	e, clock := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id)

	clock.Advance(42 * time.Hour) // half an interval
	requireAmount(t, 750, e.GetAuctionInfo(tokUSD).CurrentPrice)

	clock.Advance(42 * time.Hour) // one full interval
	requireAmount(t, 500, e.GetAuctionInfo(tokUSD).CurrentPrice)

	clock.Advance(84 * time.Hour)
	requireAmount(t, 250, e.GetAuctionInfo(tokUSD).CurrentPrice)
}

func TestAuctionRestartsOnNewFees(t *testing.T) {
	e, clock := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id)

	clock.Advance(84 * time.Hour) // decayed to 500
	settleFees(t, e, id)          // new fees restart the sale

	info := e.GetAuctionInfo(tokUSD)
	requireAmount(t, 2_000, info.StartPrice) // 500 × reset factor 4
	requireAmount(t, 100, info.AccumulatedFees)
	require.Equal(t, clock.Now().Unix(), info.StartTime)
}

func TestAuctionRestartClampsToCeiling(t *testing.T) {
	clock := newTestClock()
	cfg := DefaultConfig()
	cfg.AuctionInitialPrice = big.NewInt(1_000)
	cfg.AuctionCeilingPrice = big.NewInt(1_500)
	e := New(cfg, WithClock(clock.Now))
	e.Custody().Mint(tokUSD, alice, big.NewInt(1_000_000))

	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id)
	settleFees(t, e, id) // restart from an undecayed 1_000

	requireAmount(t, 1_500, e.GetAuctionInfo(tokUSD).StartPrice)
}

func TestBurnForFees(t *testing.T) {
	e, clock := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id) // 50 units accumulated

	e.Custody().MintNative(keeper, big.NewInt(10_000))
	clock.Advance(84 * time.Hour) // price 500

	err := e.BurnForFees(keeper, tokUSD, keeper, big.NewInt(40), big.NewInt(500))
	require.NoError(t, err)

	// The fee lot left contract custody, the native went to the burn
	// address whole, and the sale reset the price upward.
	requireAmount(t, 40, e.Custody().Balance(tokUSD, keeper))
	requireAmount(t, 500, e.Custody().NativeBalance(BurnAddress))
	requireAmount(t, 9_500, e.Custody().NativeBalance(keeper))
	requireAmount(t, 10, e.AccumulatedFees(tokUSD))
	requireAmount(t, 500, e.TotalBurned())
	requireAmount(t, 2_000, e.GetAuctionInfo(tokUSD).StartPrice)
}

func TestBurnForFeesOverpaymentBurnsWhole(t *testing.T) {
	e, clock := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id)

	e.Custody().MintNative(keeper, big.NewInt(10_000))
	clock.Advance(84 * time.Hour) // price 500

	// Everything attached burns, not just the price.
	require.NoError(t, e.BurnForFees(keeper, tokUSD, keeper, big.NewInt(10), big.NewInt(800)))
	requireAmount(t, 800, e.Custody().NativeBalance(BurnAddress))
	requireAmount(t, 800, e.TotalBurned())
}

func TestBurnForFeesErrors(t *testing.T) {
	e, clock := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id) // 50 units, price 1_000

	// More than accumulated.
	err := e.BurnForFees(keeper, tokUSD, keeper, big.NewInt(100), big.NewInt(10_000))
	var exceeds *WithdrawAmountExceedsAccumulatedFeesError
	require.ErrorAs(t, err, &exceeds)
	requireAmount(t, 50, exceeds.Available)

	// Underpaying the decayed price.
	clock.Advance(84 * time.Hour)
	err = e.BurnForFees(keeper, tokUSD, keeper, big.NewInt(10), big.NewInt(499))
	var short *InsufficientNativeTokenForBurnError
	require.ErrorAs(t, err, &short)
	requireAmount(t, 500, short.Required)

	// Price covered on the ledger but not in custody.
	err = e.BurnForFees(keeper, tokUSD, keeper, big.NewInt(10), big.NewInt(500))
	var insufficient *InsufficientUnlockedFundsError
	require.ErrorAs(t, err, &insufficient)

	// Nothing moved in any failed attempt.
	requireAmount(t, 50, e.AccumulatedFees(tokUSD))
	requireAmount(t, 0, e.TotalBurned())
}

func TestBurnZeroClearsStaleAuction(t *testing.T) {
	e, clock := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id)

	// Decay past the cutoff: the auction is stale at price zero.
	clock.Advance(64 * 84 * time.Hour)
	requireAmount(t, 0, e.GetAuctionInfo(tokUSD).CurrentPrice)

	require.NoError(t, e.BurnForFees(keeper, tokUSD, keeper, big.NewInt(0), nil))
	requireAmount(t, 0, e.GetAuctionInfo(tokUSD).StartPrice)

	// Fully decayed fees are claimable for free.
	require.NoError(t, e.BurnForFees(keeper, tokUSD, keeper, big.NewInt(50), nil))
	requireAmount(t, 50, e.Custody().Balance(tokUSD, keeper))
	requireAmount(t, 0, e.AccumulatedFees(tokUSD))
	requireAmount(t, 0, e.TotalBurned())
}

func TestAuctionsPerToken(t *testing.T) {
	e, _ := newTestEngine(t)
	id := setupRail(t, e)
	mustSetRate(t, e, id, 500)
	settleFees(t, e, id)

	// A token with no fees has no auction.
	other := e.GetAuctionInfo("tok:other")
	require.Zero(t, other.StartTime)
	requireAmount(t, 0, other.AccumulatedFees)
}
