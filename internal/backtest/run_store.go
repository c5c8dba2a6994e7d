package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quantsim/internal/types"

	_ "modernc.org/sqlite"
)

// RunStore persists runs, trades, and equity snapshots in sqlite.
type RunStore struct {
	db *sql.DB
}

const runSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id           TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	timeframe    TEXT NOT NULL,
	status       TEXT NOT NULL,
	start_ts     INTEGER NOT NULL,
	end_ts       INTEGER NOT NULL,
	initial_cash REAL NOT NULL,
	final_equity REAL NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	config       TEXT NOT NULL,
	stats        TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS backtest_trades (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL,
	order_id TEXT NOT NULL,
	symbol   TEXT NOT NULL,
	side     TEXT NOT NULL,
	quantity REAL NOT NULL,
	price    REAL NOT NULL,
	fee      REAL NOT NULL,
	ts       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bt_trades_run ON backtest_trades(run_id, ts);
CREATE TABLE IF NOT EXISTS backtest_snapshots (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL,
	ts       INTEGER NOT NULL,
	equity   REAL NOT NULL,
	drawdown REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_bt_snapshots_run ON backtest_snapshots(run_id, ts);
`

func NewRunStore(path string) (*RunStore, error) {
	if path == "" {
		return nil, fmt.Errorf("run store: path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run store: init schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error { return s.db.Close() }

func (s *RunStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `INSERT INTO backtest_runs
		(id, symbol, timeframe, status, start_ts, end_ts, initial_cash, final_equity, message, config, stats, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Symbol, run.Timeframe, run.Status, run.StartTS, run.EndTS,
		run.InitialCash, run.FinalEquity, run.Message, string(cfgJSON), string(statsJSON), now, now)
	return err
}

func (s *RunStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backtest_runs SET status=?, message=?, updated_at=? WHERE id=?`,
		status, message, time.Now().UnixMilli(), id)
	return err
}

// UpdateRunSummary finalizes a run with its stats.
func (s *RunStore) UpdateRunSummary(ctx context.Context, id, status string, stats RunStats, message string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `UPDATE backtest_runs
		SET status=?, message=?, stats=?, final_equity=?, updated_at=?, completed_at=? WHERE id=?`,
		status, message, string(statsJSON), stats.FinalEquity, now, now, id)
	return err
}

func (s *RunStore) InsertTrade(ctx context.Context, runID string, trade types.Trade) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO backtest_trades
		(run_id, order_id, symbol, side, quantity, price, fee, ts) VALUES (?,?,?,?,?,?,?,?)`,
		runID, trade.OrderID, trade.Symbol, string(trade.Side), trade.Quantity, trade.Price, trade.Fee, trade.Timestamp.UnixMilli())
	return err
}

func (s *RunStore) InsertSnapshot(ctx context.Context, snap EquitySnapshot) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO backtest_snapshots
		(run_id, ts, equity, drawdown) VALUES (?,?,?,?)`,
		snap.RunID, snap.TS, snap.Equity, snap.Drawdown)
	return err
}

func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, symbol, timeframe, status, start_ts, end_ts,
		initial_cash, final_equity, message, config, stats, created_at, updated_at, completed_at
		FROM backtest_runs WHERE id=?`, id)
	return scanRun(row)
}

func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, timeframe, status, start_ts, end_ts,
		initial_cash, final_equity, message, config, stats, created_at, updated_at, completed_at
		FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *RunStore) ListTrades(ctx context.Context, runID string) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, symbol, side, quantity, price, fee, ts
		FROM backtest_trades WHERE run_id=? ORDER BY ts ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Trade
	for rows.Next() {
		var t types.Trade
		var side string
		var ts int64
		if err := rows.Scan(&t.OrderID, &t.Symbol, &side, &t.Quantity, &t.Price, &t.Fee, &ts); err != nil {
			return nil, err
		}
		t.Side = types.Side(side)
		t.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *RunStore) ListSnapshots(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, ts, equity, drawdown
		FROM backtest_snapshots WHERE run_id=? ORDER BY ts ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EquitySnapshot
	for rows.Next() {
		var snap EquitySnapshot
		if err := rows.Scan(&snap.RunID, &snap.TS, &snap.Equity, &snap.Drawdown); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var cfgJSON, statsJSON string
	var createdAt, updatedAt, completedAt int64
	err := row.Scan(&run.ID, &run.Symbol, &run.Timeframe, &run.Status, &run.StartTS, &run.EndTS,
		&run.InitialCash, &run.FinalEquity, &run.Message, &cfgJSON, &statsJSON,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return Run{}, fmt.Errorf("run store: decode config for %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &run.Stats); err != nil {
		return Run{}, fmt.Errorf("run store: decode stats for %s: %w", run.ID, err)
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if completedAt > 0 {
		run.CompletedAt = time.UnixMilli(completedAt).UTC()
	}
	return run, nil
}
