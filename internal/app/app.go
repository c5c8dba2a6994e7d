// Package app assembles the services described by the config and runs
// the selected mode.
package app

import (
	"context"
	"fmt"
	"time"

	"quantsim/internal/backtest"
	"quantsim/internal/config"
	"quantsim/internal/live"
	"quantsim/internal/logger"
	"quantsim/internal/market"
	"quantsim/internal/report"
	"quantsim/internal/store/gormstore"
	httpapi "quantsim/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg      *config.Config
	candles  *market.Store
	results  *backtest.RunStore
	sim      *backtest.Simulator
	sessions *gormstore.Store
	runner   *live.Runner
	server   *httpapi.Server
}

func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run executes the configured mode and blocks until it finishes or ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.sim.SetContext(ctx)
	switch a.cfg.App.Mode {
	case "backtest":
		return a.runBacktest(ctx)
	case "live":
		return a.runLive(ctx)
	case "serve":
		return a.serve(ctx)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.App.Mode)
	}
}

func (a *App) Close() {
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			logger.Warnf("app: closing run store: %v", err)
		}
	}
	if a.candles != nil {
		if err := a.candles.Close(); err != nil {
			logger.Warnf("app: closing candle store: %v", err)
		}
	}
}

// runBacktest submits the run described by the config and waits for it.
func (a *App) runBacktest(ctx context.Context) error {
	bt := a.cfg.Backtest
	if bt.Symbol == "" || bt.StartTS == 0 || bt.EndTS == 0 {
		return fmt.Errorf("app: backtest mode needs backtest.symbol, start_ts and end_ts")
	}
	params, err := a.cfg.Strategy.ParamsJSON()
	if err != nil {
		return err
	}
	run, err := a.sim.StartRun(backtest.RunRequest{
		Symbol:         bt.Symbol,
		Timeframe:      bt.Timeframe,
		StartTS:        bt.StartTS,
		EndTS:          bt.EndTS,
		InitialCash:    bt.InitialCash,
		FeeRate:        bt.FeeRate,
		SlippageBps:    bt.SlippageBps,
		Strategy:       a.cfg.Strategy.Name,
		StrategyParams: params,
	})
	if err != nil {
		return err
	}
	logger.Infof("app: backtest run %s submitted", run.ID)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		cur, err := a.sim.Run(ctx, run.ID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case backtest.RunStatusDone:
			logger.Infof("app: run %s done: final=%.2f return=%.2f%% maxdd=%.2f%% trades=%d halted=%v",
				cur.ID, cur.Stats.FinalEquity, cur.Stats.ReturnPct, cur.Stats.MaxDrawdownPct,
				cur.Stats.Trades, cur.Stats.Halted)
			return nil
		case backtest.RunStatusFailed:
			return fmt.Errorf("app: run %s failed: %s", cur.ID, cur.Message)
		}
	}
}

func (a *App) runLive(ctx context.Context) error {
	if a.runner == nil {
		return fmt.Errorf("app: live mode needs live.symbol")
	}
	state, err := a.runner.Run(ctx)
	if err != nil {
		return err
	}
	sum := report.Build(state.Portfolio.EquityCurve, state.Trades)
	logger.Infof("app: session %s: final=%.2f return=%.2f%% trades=%d halted=%v",
		state.ID, sum.FinalEquity, sum.ReturnPct, sum.Trades, state.Halted)
	return nil
}

func (a *App) serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("app: http listening on %s", a.cfg.App.HTTPAddr)
		return a.server.Start(ctx)
	})
	if a.runner != nil {
		group.Go(func() error {
			_, err := a.runner.Run(ctx)
			return err
		})
	}
	return group.Wait()
}
