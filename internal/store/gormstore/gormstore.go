// Package gormstore persists live paper sessions and their trades using
// Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quantsim/internal/live"
	"quantsim/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type sessionModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Symbol      string `gorm:"size:32;index"`
	Interval    string `gorm:"size:16"`
	StartTime   time.Time
	EndTime     time.Time
	Bars        int
	Halted      bool
	Cash        float64
	FinalEquity float64
	Portfolio   datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (sessionModel) TableName() string { return "live_sessions" }

type tradeModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:64;index"`
	OrderID   string `gorm:"size:64"`
	Symbol    string `gorm:"size:32"`
	Side      string `gorm:"size:8"`
	Quantity  float64
	Price     float64
	Fee       float64
	Timestamp time.Time
	CreatedAt time.Time
}

func (tradeModel) TableName() string { return "live_trades" }

// Store implements live.TradeStore.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// CGO is disabled for this build, so route the dialector through the
	// pure-Go modernc driver; the DSN already uses its _pragma syntax.
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sessionModel{}, &tradeModel{}); err != nil {
		return nil, fmt.Errorf("gorm store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveSession upserts the final session record.
func (s *Store) SaveSession(ctx context.Context, state live.SessionState) error {
	pfJSON, err := json.Marshal(state.Portfolio)
	if err != nil {
		return err
	}
	finalEquity := state.Portfolio.Cash
	if n := len(state.Portfolio.EquityCurve); n > 0 {
		finalEquity = state.Portfolio.EquityCurve[n-1].Value
	}
	rec := sessionModel{
		ID:          state.ID,
		Symbol:      state.Symbol,
		Interval:    state.Interval,
		StartTime:   state.StartTime,
		EndTime:     state.EndTime,
		Bars:        state.Bars,
		Halted:      state.Halted,
		Cash:        state.Portfolio.Cash,
		FinalEquity: finalEquity,
		Portfolio:   datatypes.JSON(pfJSON),
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// SaveTrade appends one executed trade for a session.
func (s *Store) SaveTrade(ctx context.Context, sessionID string, trade types.Trade) error {
	rec := tradeModel{
		SessionID: sessionID,
		OrderID:   trade.OrderID,
		Symbol:    trade.Symbol,
		Side:      string(trade.Side),
		Quantity:  trade.Quantity,
		Price:     trade.Price,
		Fee:       trade.Fee,
		Timestamp: trade.Timestamp,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// SessionTrades returns a session's trades in execution order.
func (s *Store) SessionTrades(ctx context.Context, sessionID string) ([]types.Trade, error) {
	var recs []tradeModel
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Trade, 0, len(recs))
	for _, rec := range recs {
		out = append(out, types.Trade{
			OrderID:   rec.OrderID,
			Symbol:    rec.Symbol,
			Side:      types.Side(rec.Side),
			Quantity:  rec.Quantity,
			Price:     rec.Price,
			Fee:       rec.Fee,
			Timestamp: rec.Timestamp,
		})
	}
	return out, nil
}

// Sessions lists recent sessions, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]live.SessionState, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []sessionModel
	err := s.db.WithContext(ctx).
		Order("start_time DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]live.SessionState, 0, len(recs))
	for _, rec := range recs {
		state := live.SessionState{
			ID:        rec.ID,
			Symbol:    rec.Symbol,
			Interval:  rec.Interval,
			StartTime: rec.StartTime,
			EndTime:   rec.EndTime,
			Bars:      rec.Bars,
			Halted:    rec.Halted,
		}
		if len(rec.Portfolio) > 0 {
			if err := json.Unmarshal(rec.Portfolio, &state.Portfolio); err != nil {
				return nil, fmt.Errorf("gorm store: decode portfolio for %s: %w", rec.ID, err)
			}
		}
		out = append(out, state)
	}
	return out, nil
}
