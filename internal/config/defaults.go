package config

import "strings"

const (
	defaultAppEnv         = "dev"
	defaultAppLogLevel    = "info"
	defaultAppLogPath     = ""
	defaultAppHTTPAddr    = ":9980"
	defaultAppMode        = "serve"
	defaultCandleDB       = "data/candles.db"
	defaultResultsDB      = "data/backtests.db"
	defaultSessionDB      = "data/sessions.db"
	defaultMarketSource   = "binance"
	defaultMarketREST     = "https://api.binance.com"
	defaultReconnectDelay = 5
	defaultStreamBuffer   = 256
	defaultInitialCash    = 10000
	defaultFeeRate        = 0.0005
	defaultMaxConcurrent  = 2
	defaultTimeframe      = "1h"
	defaultLiveInterval   = "1m"
	defaultQueueSize      = 64
	defaultSizingFraction = 0.1
	defaultStrategyName   = "momentum"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Data.applyDefaults()
	c.Market.applyDefaults()
	c.Backtest.applyDefaults()
	c.Live.applyDefaults()
	c.Sizing.applyDefaults()
	c.Strategy.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	setStringDefault(&a.Env, defaultAppEnv)
	setStringDefault(&a.LogLevel, defaultAppLogLevel)
	setStringDefault(&a.HTTPAddr, defaultAppHTTPAddr)
	setStringDefault(&a.Mode, defaultAppMode)
	if a.LogPath == "" {
		a.LogPath = defaultAppLogPath
	}
}

func (d *DataConfig) applyDefaults() {
	setStringDefault(&d.CandleDB, defaultCandleDB)
	setStringDefault(&d.ResultsDB, defaultResultsDB)
	setStringDefault(&d.SessionDB, defaultSessionDB)
}

func (m *MarketConfig) applyDefaults() {
	setStringDefault(&m.Source, defaultMarketSource)
	setStringDefault(&m.RESTBaseURL, defaultMarketREST)
	if m.ReconnectDelaySeconds <= 0 {
		m.ReconnectDelaySeconds = defaultReconnectDelay
	}
	if m.MaxReconnectAttempts < 0 {
		m.MaxReconnectAttempts = 0
	}
	if m.StreamBuffer <= 0 {
		m.StreamBuffer = defaultStreamBuffer
	}
}

func (b *BacktestConfig) applyDefaults() {
	if b.InitialCash <= 0 {
		b.InitialCash = defaultInitialCash
	}
	if b.FeeRate < 0 {
		b.FeeRate = defaultFeeRate
	}
	if b.SlippageBps < 0 {
		b.SlippageBps = 0
	}
	if b.MaxConcurrent <= 0 {
		b.MaxConcurrent = defaultMaxConcurrent
	}
	setStringDefault(&b.Timeframe, defaultTimeframe)
}

func (l *LiveConfig) applyDefaults() {
	setStringDefault(&l.Interval, defaultLiveInterval)
	if l.InitialCash <= 0 {
		l.InitialCash = defaultInitialCash
	}
	if l.FeeRate < 0 {
		l.FeeRate = defaultFeeRate
	}
	if l.SlippageBps < 0 {
		l.SlippageBps = 0
	}
	if l.QueueSize <= 0 {
		l.QueueSize = defaultQueueSize
	}
}

func (s *SizingConfig) applyDefaults() {
	if s.Fraction <= 0 || s.Fraction > 1 {
		s.Fraction = defaultSizingFraction
	}
}

func (s *StrategyConfig) applyDefaults() {
	setStringDefault(&s.Name, defaultStrategyName)
}

func setStringDefault(target *string, def string) {
	if strings.TrimSpace(*target) == "" {
		*target = def
	}
}
