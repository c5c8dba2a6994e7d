package backtest

import (
	"encoding/json"
	"time"

	"quantsim/internal/risk"
	"quantsim/internal/sizing"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig is the parameter snapshot for one simulation, persisted with
// the run so it can be replayed.
type RunConfig struct {
	Symbol         string          `json:"symbol"`
	Timeframe      string          `json:"timeframe"`
	StartTS        int64           `json:"start_ts"`
	EndTS          int64           `json:"end_ts"`
	InitialCash    float64         `json:"initial_cash"`
	FeeRate        float64         `json:"fee_rate"`
	SlippageBps    float64         `json:"slippage_bps"`
	Strategy       string          `json:"strategy"`
	StrategyParams json.RawMessage `json:"strategy_params,omitempty"`
	Sizing         sizing.Config   `json:"sizing"`
	Risk           risk.Limits     `json:"risk"`
}

// RunStats summarizes a finished run. ReturnPct and MaxDrawdownPct are
// percentages (5.0 means 5%), the same unit report.Summary uses; WinRate
// is a 0..1 fraction.
type RunStats struct {
	FinalEquity    float64   `json:"final_equity"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	Bars           int       `json:"bars"`
	Trades         int       `json:"trades"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	WinRate        float64   `json:"win_rate"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	Halted         bool      `json:"halted"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run is one simulation task.
type Run struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	Status      string    `json:"status"`
	StartTS     int64     `json:"start_ts"`
	EndTS       int64     `json:"end_ts"`
	InitialCash float64   `json:"initial_cash"`
	FinalEquity float64   `json:"final_equity"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// EquitySnapshot is one persisted equity-curve row.
type EquitySnapshot struct {
	RunID    string  `json:"run_id"`
	TS       int64   `json:"ts"`
	Equity   float64 `json:"equity"`
	Drawdown float64 `json:"drawdown"`
}

// RunRequest is the submission shape used by the HTTP API.
type RunRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Timeframe      string          `json:"timeframe"`
	StartTS        int64           `json:"start_ts" binding:"required"`
	EndTS          int64           `json:"end_ts" binding:"required"`
	InitialCash    float64         `json:"initial_cash"`
	FeeRate        float64         `json:"fee_rate"`
	SlippageBps    float64         `json:"slippage_bps"`
	Strategy       string          `json:"strategy"`
	StrategyParams json.RawMessage `json:"strategy_params,omitempty"`
}
