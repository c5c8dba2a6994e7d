package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quantsim/internal/live"
	"quantsim/internal/portfolio"
	"quantsim/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	return store
}

func sampleState(id string) live.SessionState {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return live.SessionState{
		ID:        id,
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Bars:      60,
		Halted:    false,
		Portfolio: portfolio.Snapshot{
			Cash: 9000,
			Positions: map[string]portfolio.Position{
				"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 10, AvgPrice: 100},
			},
			EquityCurve: []portfolio.EquityPoint{
				{TS: start, Value: 10000},
				{TS: start.Add(time.Minute), Value: 10050},
			},
		},
	}
}

func TestSaveSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, sampleState("sess-1")))

	sessions, err := store.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, "sess-1", got.ID)
	assert.Equal(t, 60, got.Bars)
	assert.Equal(t, 9000.0, got.Portfolio.Cash)
	assert.Equal(t, 10.0, got.Portfolio.Positions["BTCUSDT"].Quantity)
	require.Len(t, got.Portfolio.EquityCurve, 2)
	assert.Equal(t, 10050.0, got.Portfolio.EquityCurve[1].Value)
}

func TestSaveSessionUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	state := sampleState("sess-1")
	require.NoError(t, store.SaveSession(ctx, state))

	state.Bars = 120
	state.Halted = true
	require.NoError(t, store.SaveSession(ctx, state))

	sessions, err := store.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 120, sessions[0].Bars)
	assert.True(t, sessions[0].Halted)
}

func TestSaveTradeAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, sampleState("sess-1")))

	ts := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	for i, side := range []types.Side{types.SideBuy, types.SideSell} {
		require.NoError(t, store.SaveTrade(ctx, "sess-1", types.Trade{
			OrderID:   "ord-" + string(rune('a'+i)),
			Symbol:    "BTCUSDT",
			Side:      side,
			Quantity:  1,
			Price:     100,
			Fee:       0.05,
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		}))
	}

	trades, err := store.SessionTrades(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, types.SideBuy, trades[0].Side)
	assert.Equal(t, types.SideSell, trades[1].Side)
	assert.Equal(t, "ord-a", trades[0].OrderID)

	trades, err = store.SessionTrades(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSessionsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	older := sampleState("sess-old")
	newer := sampleState("sess-new")
	newer.StartTime = older.StartTime.Add(time.Hour)
	require.NoError(t, store.SaveSession(ctx, older))
	require.NoError(t, store.SaveSession(ctx, newer))

	sessions, err := store.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-new", sessions[0].ID)
}
