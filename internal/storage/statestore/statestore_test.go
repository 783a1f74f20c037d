package statestore

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railpay/paymentsd/internal/core/engine"
	"github.com/railpay/paymentsd/internal/storage/kvstore"
)

func buildSnapshot(t *testing.T) *engine.Snapshot {
	t.Helper()

	e := engine.New(engine.DefaultConfig())
	e.Custody().Mint("tok-usd", "addr:alice", big.NewInt(1_000_000))
	_, err := e.Deposit("addr:alice", "tok-usd", "addr:alice", big.NewInt(50_000))
	require.NoError(t, err)
	require.NoError(t, e.SetOperatorApproval("addr:alice", "tok-usd", "addr:operator", true,
		big.NewInt(1_000_000), big.NewInt(1_000_000), 100))
	railID, err := e.CreateRail("addr:operator", "tok-usd", "addr:alice", "addr:bob", "", 0, "")
	require.NoError(t, err)
	require.NoError(t, e.ModifyRailPayment("addr:operator", railID, big.NewInt(500), nil))
	e.AdvanceEpochs(3)

	return e.Snapshot()
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := New(kvstore.NewMemoryDB(), 0)
	ctx := context.Background()
	snap := buildSnapshot(t)

	require.NoError(t, store.Save(ctx, snap))

	loaded, epoch, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.CurrentEpoch, epoch)
	assert.Equal(t, snap, loaded)

	// A restored engine accepts the loaded snapshot.
	restored := engine.New(engine.DefaultConfig())
	require.NoError(t, restored.Restore(loaded))
	assert.Equal(t, snap.CurrentEpoch, restored.CurrentEpoch())
}

func TestLoadLatestEmpty(t *testing.T) {
	store := New(kvstore.NewMemoryDB(), 0)
	_, _, err := store.LoadLatest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = store.Load(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestCompressedRoundTrip(t *testing.T) {
	// Threshold 1 forces the lz4 path for any snapshot.
	store := New(kvstore.NewMemoryDB(), 1)
	ctx := context.Background()

	snap := buildSnapshot(t)
	for i := 0; i < 500; i++ {
		snap.Custody = append(snap.Custody, engine.CustodyRecord{
			Token:   "tok-usd",
			Holder:  fmt.Sprintf("addr:holder-%04d", i),
			Balance: "123456789",
		})
	}

	require.NoError(t, store.Save(ctx, snap))
	loaded, _, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestLatestPointerTracksNewestEpoch(t *testing.T) {
	store := New(kvstore.NewMemoryDB(), 0)
	ctx := context.Background()

	for _, epoch := range []uint64{5, 9, 12} {
		snap := &engine.Snapshot{CurrentEpoch: epoch, NextRailID: 1, TotalBurned: "0"}
		require.NoError(t, store.Save(ctx, snap))
	}

	_, epoch, err := store.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), epoch)

	epochs, err := store.Epochs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 9, 12}, epochs)

	// Older snapshots remain individually loadable.
	snap, err := store.Load(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), snap.CurrentEpoch)
}

func TestPruneKeepsNewest(t *testing.T) {
	store := New(kvstore.NewMemoryDB(), 0)
	ctx := context.Background()

	for epoch := uint64(1); epoch <= 6; epoch++ {
		snap := &engine.Snapshot{CurrentEpoch: epoch, NextRailID: 1, TotalBurned: "0"}
		require.NoError(t, store.Save(ctx, snap))
	}

	require.NoError(t, store.Prune(ctx, 2))

	epochs, err := store.Epochs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6}, epochs)

	_, err = store.Load(ctx, 3)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, _, err = store.LoadLatest(ctx)
	require.NoError(t, err)
}

func TestCorruptRecordRejected(t *testing.T) {
	db := kvstore.NewMemoryDB()
	store := New(db, 0)
	ctx := context.Background()

	snap := &engine.Snapshot{CurrentEpoch: 4, NextRailID: 1, TotalBurned: "0"}
	require.NoError(t, store.Save(ctx, snap))

	// Clobber the stored record with an unknown frame format.
	require.NoError(t, db.Write(ctx, epochKey(4), []byte{0xee, 0x01, 0x02}))
	_, err := store.Load(ctx, 4)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}
