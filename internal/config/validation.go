package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Live.validate(); err != nil {
		return err
	}
	if err := c.Sizing.validate(); err != nil {
		return err
	}
	return c.Risk.validate()
}

func (a *AppConfig) validate() error {
	switch a.Mode {
	case "backtest", "live", "serve":
	default:
		return fmt.Errorf("app.mode must be backtest, live or serve, got %q", a.Mode)
	}
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be debug, info, warn or error, got %q", a.LogLevel)
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch strings.ToLower(m.Source) {
	case "binance", "synthetic":
	default:
		return fmt.Errorf("market.source must be binance or synthetic, got %q", m.Source)
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.FeeRate >= 1 {
		return fmt.Errorf("backtest.fee_rate must be below 1")
	}
	if b.StartTS != 0 || b.EndTS != 0 {
		if b.EndTS <= b.StartTS {
			return fmt.Errorf("backtest.end_ts must be after backtest.start_ts")
		}
		if !IsValidInterval(b.Timeframe) {
			return fmt.Errorf("backtest.timeframe %q is not a valid interval", b.Timeframe)
		}
	}
	return nil
}

func (l *LiveConfig) validate() error {
	if l.FeeRate >= 1 {
		return fmt.Errorf("live.fee_rate must be below 1")
	}
	if !IsValidInterval(l.Interval) {
		return fmt.Errorf("live.interval %q is not a valid interval", l.Interval)
	}
	return nil
}

func (s *SizingConfig) validate() error {
	if s.Fraction <= 0 || s.Fraction > 1 {
		return fmt.Errorf("sizing.fraction must be in (0, 1]")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxDailyLoss < 0 || r.MaxDailyLoss >= 1 {
		return fmt.Errorf("risk.max_daily_loss must be in [0, 1)")
	}
	if r.MaxPositionPct < 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be in [0, 1]")
	}
	return nil
}

// IsValidInterval accepts strings like 1m, 15m, 4h, 1d, 1w.
func IsValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
