package eventdb

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railpay/paymentsd/internal/core/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, 3, engine.DepositEvent{
		Token:       "tok-usd",
		From:        "addr:alice",
		Beneficiary: "addr:alice",
		Amount:      big.NewInt(500),
		Received:    big.NewInt(500),
	}))
	require.NoError(t, store.Append(ctx, 4, engine.RailSettledEvent{
		RailID:       7,
		SegmentStart: 1,
		SegmentEnd:   4,
		Rate:         big.NewInt(100),
		Settled:      big.NewInt(300),
		NetPayee:     big.NewInt(297),
		Fee:          big.NewInt(3),
		Commission:   big.NewInt(0),
	}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest first.
	assert.Equal(t, "rail.settled", recent[0].Kind)
	assert.Equal(t, uint64(4), recent[0].Epoch)
	require.NotNil(t, recent[0].RailID)
	assert.Equal(t, uint64(7), *recent[0].RailID)

	assert.Equal(t, "account.deposit", recent[1].Kind)
	assert.Equal(t, "tok-usd", recent[1].Token)
	assert.Nil(t, recent[1].RailID)

	var payload engine.RailSettledEvent
	require.NoError(t, json.Unmarshal(recent[0].Payload, &payload))
	assert.Equal(t, "300", payload.Settled.String())
}

func TestQueryByRailAndKind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, store.Append(ctx, i, engine.RailSettledEvent{
			RailID: 1, SegmentStart: i - 1, SegmentEnd: i,
			Rate: big.NewInt(10), Settled: big.NewInt(10),
			NetPayee: big.NewInt(10), Fee: big.NewInt(0), Commission: big.NewInt(0),
		}))
	}
	require.NoError(t, store.Append(ctx, 3, engine.RailFinalizedEvent{RailID: 2}))
	require.NoError(t, store.Append(ctx, 3, engine.WithdrawEvent{
		Token: "tok-usd", Owner: "addr:alice", Amount: big.NewInt(1),
	}))

	byRail, err := store.ByRail(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, byRail, 3)
	for _, ev := range byRail {
		assert.Equal(t, "rail.settled", ev.Kind)
	}

	byKind, err := store.ByKind(ctx, "rail.finalized", 10)
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	require.NotNil(t, byKind[0].RailID)
	assert.Equal(t, uint64(2), *byKind[0].RailID)

	limited, err := store.ByRail(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSinkWritesAsync(t *testing.T) {
	store := openTestStore(t)

	sink := NewSink(store, func() uint64 { return 9 }, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.Run(ctx)
	}()

	sink.Emit(engine.RailCreatedEvent{RailID: 5, Token: "tok-usd", From: "addr:a", To: "addr:b", Operator: "addr:op"})
	sink.Emit(engine.RailFinalizedEvent{RailID: 5})

	require.Eventually(t, func() bool {
		count, err := store.Count(context.Background())
		return err == nil && count == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	events, err := store.ByRail(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(9), events[0].Epoch)
	assert.Zero(t, sink.Dropped())
}

func TestSinkShedsWhenFull(t *testing.T) {
	store := openTestStore(t)

	// No Run goroutine: the buffer fills and overflow is counted.
	sink := NewSink(store, func() uint64 { return 0 }, 2)
	for i := 0; i < 5; i++ {
		sink.Emit(engine.RailFinalizedEvent{RailID: uint64(i)})
	}
	assert.Equal(t, uint64(3), sink.Dropped())
}
