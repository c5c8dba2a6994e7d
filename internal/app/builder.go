package app

import (
	"fmt"
	"strings"
	"time"

	"quantsim/internal/backtest"
	"quantsim/internal/config"
	"quantsim/internal/live"
	"quantsim/internal/market"
	"quantsim/internal/risk"
	"quantsim/internal/sizing"
	"quantsim/internal/store/gormstore"
	"quantsim/internal/strategy"
	httpapi "quantsim/internal/transport/http"
)

// build wires stores, sources and services from the config. Live pieces
// are only constructed for modes that run a stream.
func build(cfg *config.Config) (*App, error) {
	candles, err := market.NewStore(cfg.Data.CandleDB)
	if err != nil {
		return nil, fmt.Errorf("app: candle store: %w", err)
	}
	results, err := backtest.NewRunStore(cfg.Data.ResultsDB)
	if err != nil {
		return nil, fmt.Errorf("app: run store: %w", err)
	}

	source := buildSource(cfg)
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		CandleStore:   candles,
		ResultStore:   results,
		Source:        source,
		Sizing:        sizingConfig(cfg),
		Risk:          riskLimits(cfg),
		FeeRate:       cfg.Backtest.FeeRate,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		candles: candles,
		results: results,
		sim:     sim,
	}

	if cfg.App.Mode == "live" || cfg.App.Mode == "serve" {
		sessions, err := gormstore.New(cfg.Data.SessionDB)
		if err != nil {
			return nil, fmt.Errorf("app: session store: %w", err)
		}
		a.sessions = sessions
		if cfg.Live.Symbol != "" {
			runner, err := buildRunner(cfg, sessions)
			if err != nil {
				return nil, err
			}
			a.runner = runner
		}
	}

	if cfg.App.Mode == "serve" {
		server, err := httpapi.NewServer(httpapi.Config{
			Addr:      cfg.App.HTTPAddr,
			Simulator: sim,
			Results:   results,
			Candles:   candles,
			Runner:    a.runner,
			Sessions:  a.sessions,
		})
		if err != nil {
			return nil, err
		}
		a.server = server
	}
	return a, nil
}

func buildSource(cfg *config.Config) market.Source {
	switch strings.ToLower(cfg.Market.Source) {
	case "synthetic":
		return market.NewSyntheticSource(0, intervalDuration(cfg.Live.Interval), 0)
	default:
		return market.NewBinanceSource(cfg.Market.RESTBaseURL)
	}
}

func intervalDuration(interval string) time.Duration {
	if len(interval) < 2 {
		return time.Minute
	}
	n := 0
	for i := 0; i < len(interval)-1; i++ {
		c := interval[i]
		if c < '0' || c > '9' {
			return time.Minute
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 {
		n = 1
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour
	default:
		return time.Minute
	}
}

// buildRunner wraps the configured source so the stream reconnects on
// failure and degrades to synthetic data after too many attempts.
func buildRunner(cfg *config.Config, store live.TradeStore) (*live.Runner, error) {
	params, err := cfg.Strategy.ParamsJSON()
	if err != nil {
		return nil, fmt.Errorf("app: strategy params: %w", err)
	}
	strat, err := strategy.New(cfg.Strategy.Name, params)
	if err != nil {
		return nil, err
	}
	source := market.NewResilient(buildSource(cfg), market.ResilientConfig{
		ReconnectDelay: time.Duration(cfg.Market.ReconnectDelaySeconds) * time.Second,
		MaxAttempts:    cfg.Market.MaxReconnectAttempts,
		Fallback:       market.NewSyntheticSource(0, intervalDuration(cfg.Live.Interval), 0),
	})
	return live.NewRunner(live.Config{
		Symbol:      strings.ToUpper(cfg.Live.Symbol),
		Interval:    strings.ToLower(cfg.Live.Interval),
		InitialCash: cfg.Live.InitialCash,
		FeeRate:     cfg.Live.FeeRate,
		SlippageBps: cfg.Live.SlippageBps,
		Sizing:      sizingConfig(cfg),
		Risk:        riskLimits(cfg),
		QueueSize:   cfg.Live.QueueSize,
	}, strat, source, store)
}

func sizingConfig(cfg *config.Config) sizing.Config {
	return sizing.Config{
		Fraction:      cfg.Sizing.Fraction,
		UseMarkEquity: cfg.Sizing.UseMarkEquity,
	}
}

func riskLimits(cfg *config.Config) risk.Limits {
	return risk.Limits{
		MaxDailyLoss:   cfg.Risk.MaxDailyLoss,
		MaxPositionPct: cfg.Risk.MaxPositionPct,
	}
}
