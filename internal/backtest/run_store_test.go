package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quantsim/internal/risk"
	"quantsim/internal/sizing"
	"quantsim/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun() Run {
	cfg := RunConfig{
		Symbol:      "BTCUSDT",
		Timeframe:   "1h",
		StartTS:     1700000000000,
		EndTS:       1700100000000,
		InitialCash: 10000,
		FeeRate:     0.0005,
		Strategy:    "momentum",
		Sizing:      sizing.Config{Fraction: 0.1},
		Risk:        risk.Limits{MaxDailyLoss: 0.2, MaxPositionPct: 0.5},
	}
	return Run{
		ID:          "run-1",
		Symbol:      cfg.Symbol,
		Timeframe:   cfg.Timeframe,
		Status:      RunStatusPending,
		StartTS:     cfg.StartTS,
		EndTS:       cfg.EndTS,
		InitialCash: cfg.InitialCash,
		FinalEquity: cfg.InitialCash,
		Config:      cfg,
	}
}

func TestRunRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertRun(ctx, sampleRun()))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, 0.1, got.Config.Sizing.Fraction)
	assert.Equal(t, 0.2, got.Config.Risk.MaxDailyLoss)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.CompletedAt.IsZero())
}

func TestUpdateRunSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertRun(ctx, sampleRun()))
	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", RunStatusRunning, "processing"))

	stats := RunStats{
		FinalEquity:    10500,
		Profit:         500,
		ReturnPct:      5.0,
		MaxDrawdownPct: 2.0,
		Bars:           100,
		Trades:         4,
		Wins:           3,
		Losses:         1,
		WinRate:        0.75,
		FinishedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.UpdateRunSummary(ctx, "run-1", RunStatusDone, stats, "done"))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.Equal(t, "done", got.Message)
	assert.Equal(t, 10500.0, got.FinalEquity)
	assert.Equal(t, 4, got.Stats.Trades)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestTradesAndSnapshotsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertRun(ctx, sampleRun()))

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertTrade(ctx, "run-1", types.Trade{
		OrderID: "ord-1", Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: 10, Price: 100, Fee: 0.5, Timestamp: ts,
	}))
	require.NoError(t, store.InsertTrade(ctx, "run-1", types.Trade{
		OrderID: "ord-2", Symbol: "BTCUSDT", Side: types.SideSell,
		Quantity: 10, Price: 110, Fee: 0.55, Timestamp: ts.Add(time.Hour),
	}))

	trades, err := store.ListTrades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "ord-1", trades[0].OrderID)
	assert.Equal(t, types.SideSell, trades[1].Side)
	assert.Equal(t, ts.Add(time.Hour), trades[1].Timestamp)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertSnapshot(ctx, EquitySnapshot{
			RunID:  "run-1",
			TS:     ts.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Equity: 10000 + float64(i)*10,
		}))
	}
	snaps, err := store.ListSnapshots(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, 10020.0, snaps[2].Equity)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := sampleRun()
	require.NoError(t, store.InsertRun(ctx, first))
	second := sampleRun()
	second.ID = "run-2"
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.InsertRun(ctx, second))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
}
