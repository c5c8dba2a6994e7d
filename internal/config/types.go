package config

import "encoding/json"

// Config is the top-level configuration carrier.
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Market   MarketConfig   `toml:"market"`
	Backtest BacktestConfig `toml:"backtest"`
	Live     LiveConfig     `toml:"live"`
	Sizing   SizingConfig   `toml:"sizing"`
	Risk     RiskConfig     `toml:"risk"`
	Strategy StrategyConfig `toml:"strategy"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
	// Mode selects what the process does: "backtest", "live" or "serve".
	Mode string `toml:"mode"`
}

// DataConfig holds the sqlite file locations.
type DataConfig struct {
	CandleDB  string `toml:"candle_db"`
	ResultsDB string `toml:"results_db"`
	SessionDB string `toml:"session_db"`
}

type MarketConfig struct {
	// Source is "binance" or "synthetic".
	Source      string `toml:"source"`
	RESTBaseURL string `toml:"rest_base_url"`
	// ReconnectDelaySeconds is the fixed pause between stream reconnect
	// attempts.
	ReconnectDelaySeconds int `toml:"reconnect_delay_seconds"`
	// MaxReconnectAttempts before the stream falls back to the synthetic
	// source for the rest of the session. 0 keeps retrying forever.
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
	StreamBuffer         int `toml:"stream_buffer"`
}

type BacktestConfig struct {
	InitialCash   float64 `toml:"initial_cash"`
	FeeRate       float64 `toml:"fee_rate"`
	SlippageBps   float64 `toml:"slippage_bps"`
	MaxConcurrent int     `toml:"max_concurrent"`
	// Symbol/Timeframe/StartTS/EndTS seed the run submitted in backtest
	// mode; the HTTP API carries its own per-request values.
	Symbol    string `toml:"symbol"`
	Timeframe string `toml:"timeframe"`
	StartTS   int64  `toml:"start_ts"`
	EndTS     int64  `toml:"end_ts"`
}

type LiveConfig struct {
	Symbol      string  `toml:"symbol"`
	Interval    string  `toml:"interval"`
	InitialCash float64 `toml:"initial_cash"`
	FeeRate     float64 `toml:"fee_rate"`
	SlippageBps float64 `toml:"slippage_bps"`
	QueueSize   int     `toml:"queue_size"`
}

type SizingConfig struct {
	// Fraction of equity committed per signal, in (0,1].
	Fraction float64 `toml:"fraction"`
	// UseMarkEquity sizes against mark-to-market equity instead of cash
	// plus cost basis.
	UseMarkEquity bool `toml:"use_mark_equity"`
}

type RiskConfig struct {
	// MaxDailyLoss halts the session when drawdown from the session's
	// first equity point reaches this fraction. 0 disables the rule.
	MaxDailyLoss float64 `toml:"max_daily_loss"`
	// MaxPositionPct caps a single order at this fraction of equity.
	// 0 disables the cap.
	MaxPositionPct float64 `toml:"max_position_pct"`
}

type StrategyConfig struct {
	Name   string         `toml:"name"`
	Params map[string]any `toml:"params"`
}

// ParamsJSON renders the free-form params table as JSON for the strategy
// factory.
func (s StrategyConfig) ParamsJSON() (json.RawMessage, error) {
	if len(s.Params) == 0 {
		return nil, nil
	}
	return json.Marshal(s.Params)
}
