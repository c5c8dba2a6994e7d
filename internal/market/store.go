package market

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Store persists candles for historical replay in a single sqlite file.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const candleSchema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT NOT NULL,
	timeframe  TEXT NOT NULL,
	open_time  INTEGER NOT NULL,
	close_time INTEGER NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     REAL NOT NULL,
	trades     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, timeframe, open_time)
);
CREATE INDEX IF NOT EXISTS idx_candles_close ON candles(symbol, timeframe, close_time);
`

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("candle store: path required")
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
	if _, err := db.Exec(candleSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("candle store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func normKey(symbol, timeframe string) (string, string) {
	return strings.ToUpper(strings.TrimSpace(symbol)), strings.ToLower(strings.TrimSpace(timeframe))
}

// Put upserts candles. Duplicate open times overwrite in place so a
// re-fetch heals bad rows.
func (s *Store) Put(ctx context.Context, symbol, timeframe string, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}
	symbol, timeframe = normKey(symbol, timeframe)
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO candles
		(symbol, timeframe, open_time, close_time, open, high, low, close, volume, trades)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, timeframe, open_time) DO UPDATE SET
		close_time=excluded.close_time, open=excluded.open, high=excluded.high,
		low=excluded.low, close=excluded.close, volume=excluded.volume, trades=excluded.trades`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Range returns candles with open_time in [start, end], ascending.
// end<=0 means no upper bound.
func (s *Store) Range(ctx context.Context, symbol, timeframe string, start, end int64) ([]Candle, error) {
	symbol, timeframe = normKey(symbol, timeframe)
	query := `SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM candles WHERE symbol=? AND timeframe=? AND open_time>=?`
	args := []any{symbol, timeframe, start}
	if end > 0 {
		query += ` AND open_time<=?`
		args = append(args, end)
	}
	query += ` ORDER BY open_time ASC`

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of stored candles for symbol@timeframe.
func (s *Store) Count(ctx context.Context, symbol, timeframe string) (int64, error) {
	symbol, timeframe = normKey(symbol, timeframe)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM candles WHERE symbol=? AND timeframe=?`, symbol, timeframe).Scan(&n)
	return n, err
}
