package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  mode: serve\n"))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "binance", cfg.Market.Source)
	assert.Equal(t, 5, cfg.Market.ReconnectDelaySeconds)
	assert.Equal(t, 10000.0, cfg.Backtest.InitialCash)
	assert.Equal(t, "1m", cfg.Live.Interval)
	assert.Equal(t, 64, cfg.Live.QueueSize)
	assert.Equal(t, 0.1, cfg.Sizing.Fraction)
	assert.Equal(t, "momentum", cfg.Strategy.Name)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  mode: live
  log_level: debug
market:
  source: synthetic
  max_reconnect_attempts: 3
live:
  symbol: ethusdt
  interval: 5m
  initial_cash: 2500
sizing:
  fraction: 0.25
  use_mark_equity: true
risk:
  max_daily_loss: 0.1
  max_position_pct: 0.3
strategy:
  name: momentum
  params:
    fast_period: 5
    slow_period: 20
`))
	require.NoError(t, err)
	assert.Equal(t, "live", cfg.App.Mode)
	assert.Equal(t, "synthetic", cfg.Market.Source)
	assert.Equal(t, 3, cfg.Market.MaxReconnectAttempts)
	assert.Equal(t, "ethusdt", cfg.Live.Symbol)
	assert.Equal(t, 2500.0, cfg.Live.InitialCash)
	assert.True(t, cfg.Sizing.UseMarkEquity)
	assert.Equal(t, 0.1, cfg.Risk.MaxDailyLoss)

	params, err := cfg.Strategy.ParamsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"fast_period":5,"slow_period":20}`, string(params))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad mode":      "app:\n  mode: replay\n",
		"bad log level": "app:\n  log_level: verbose\n",
		"bad source":    "market:\n  source: kraken\n",
		"bad interval":  "live:\n  interval: soon\n",
		"bad loss":      "risk:\n  max_daily_loss: 1.5\n",
		"bad pos pct":   "risk:\n  max_position_pct: 1.2\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	_, err = Load("")
	assert.Error(t, err)
}

func TestIsValidInterval(t *testing.T) {
	for _, ok := range []string{"1m", "15m", "4h", "1d", "1w"} {
		assert.True(t, IsValidInterval(ok), ok)
	}
	for _, bad := range []string{"", "m", "60", "1x", "h1", "1.5h"} {
		assert.False(t, IsValidInterval(bad), bad)
	}
}
