package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quantsim/internal/logger"
	"quantsim/internal/market"
	"quantsim/internal/risk"
	"quantsim/internal/sizing"

	"github.com/google/uuid"
)

// SimulatorConfig wires the simulator's collaborators and defaults.
type SimulatorConfig struct {
	CandleStore *market.Store
	ResultStore *RunStore
	// Source backfills missing candles before a run; optional.
	Source  market.Source
	Sizing  sizing.Config
	Risk    risk.Limits
	FeeRate float64
	// MaxConcurrent bounds simultaneously running simulations.
	MaxConcurrent int
}

// Simulator turns run requests into background simulations: it persists
// the Run row, replays candles through an Engine, and records trades and
// equity snapshots as the run progresses.
type Simulator struct {
	store   *market.Store
	results *RunStore
	source  market.Source
	sizing  sizing.Config
	risk    risk.Limits
	feeRate float64

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.CandleStore == nil {
		return nil, fmt.Errorf("simulator: candle store required")
	}
	if cfg.ResultStore == nil {
		return nil, fmt.Errorf("simulator: result store required")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	feeRate := cfg.FeeRate
	if feeRate < 0 {
		feeRate = 0
	}
	return &Simulator{
		store:   cfg.CandleStore,
		results: cfg.ResultStore,
		source:  cfg.Source,
		sizing:  cfg.Sizing,
		risk:    cfg.Risk,
		feeRate: feeRate,
		sem:     make(chan struct{}, maxConcurrent),
		baseCtx: context.Background(),
	}, nil
}

// SetContext rebinds the background context used by run loops.
func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// Run returns a previously started run.
func (s *Simulator) Run(ctx context.Context, id string) (Run, error) {
	return s.results.GetRun(ctx, id)
}

// StartRun validates the request, persists a pending Run, and kicks off
// the simulation in the background.
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return Run{}, fmt.Errorf("simulator: symbol required")
	}
	if req.StartTS <= 0 || req.EndTS <= 0 || req.EndTS <= req.StartTS {
		return Run{}, fmt.Errorf("simulator: invalid start/end range")
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}
	initialCash := req.InitialCash
	if initialCash <= 0 {
		initialCash = 10000
	}
	feeRate := req.FeeRate
	if feeRate <= 0 {
		feeRate = s.feeRate
	}
	slippage := req.SlippageBps
	if slippage < 0 {
		slippage = 0
	}

	cfg := RunConfig{
		Symbol:         strings.ToUpper(req.Symbol),
		Timeframe:      strings.ToLower(timeframe),
		StartTS:        req.StartTS,
		EndTS:          req.EndTS,
		InitialCash:    initialCash,
		FeeRate:        feeRate,
		SlippageBps:    slippage,
		Strategy:       req.Strategy,
		StrategyParams: req.StrategyParams,
		Sizing:         s.sizing,
		Risk:           s.risk,
	}
	run := Run{
		ID:          uuid.NewString(),
		Symbol:      cfg.Symbol,
		Timeframe:   cfg.Timeframe,
		Status:      RunStatusPending,
		StartTS:     cfg.StartTS,
		EndTS:       cfg.EndTS,
		InitialCash: initialCash,
		FinalEquity: initialCash,
		Config:      cfg,
	}
	if err := s.results.InsertRun(s.baseCtx, run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run.ID, cfg)
	return run, nil
}

func (s *Simulator) runLoop(runID string, cfg RunConfig) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("backtest: run %s waiting for a free worker", runID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.baseCtx
	if err := s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, "loading candles"); err != nil {
		logger.Debugf("backtest: update run status failed: %v", err)
	}
	if err := s.execute(ctx, runID, cfg); err != nil {
		logger.Warnf("backtest: run %s failed: %v", runID, err)
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
	}
}

func (s *Simulator) execute(ctx context.Context, runID string, cfg RunConfig) error {
	candles, err := s.loadCandles(ctx, cfg)
	if err != nil {
		return err
	}
	eng, err := NewEngine(cfg)
	if err != nil {
		return err
	}

	progressStep := len(candles) / 20
	if progressStep < 10 {
		progressStep = 10
	}
	peak := cfg.InitialCash
	eng.OnBar = func(idx int, candle market.Candle, equity float64) {
		if equity > peak {
			peak = equity
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - equity) / peak
		}
		if err := s.results.InsertSnapshot(ctx, EquitySnapshot{
			RunID:    runID,
			TS:       candle.CloseTime,
			Equity:   equity,
			Drawdown: drawdown,
		}); err != nil {
			logger.Debugf("backtest: run %s snapshot insert failed: %v", runID, err)
		}
		if (idx+1)%progressStep == 0 {
			msg := fmt.Sprintf("processing %d/%d", idx+1, len(candles))
			_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, msg)
		}
	}

	result, err := eng.Run(ctx, candles)
	if err != nil {
		return err
	}
	for _, trade := range result.Trades {
		if err := s.results.InsertTrade(ctx, runID, trade); err != nil {
			logger.Warnf("backtest: run %s trade insert failed: %v", runID, err)
		}
	}
	stats := result.Stats
	stats.FinishedAt = time.Now().UTC()
	return s.results.UpdateRunSummary(ctx, runID, RunStatusDone, stats, "done")
}

// loadCandles reads the replay window from the store, backfilling from
// the source when the store has nothing for it.
func (s *Simulator) loadCandles(ctx context.Context, cfg RunConfig) ([]market.Candle, error) {
	candles, err := s.store.Range(ctx, cfg.Symbol, cfg.Timeframe, cfg.StartTS, cfg.EndTS)
	if err != nil {
		return nil, err
	}
	if len(candles) >= 2 {
		return candles, nil
	}
	if s.source == nil {
		return nil, fmt.Errorf("simulator: no stored candles for %s@%s and no source configured", cfg.Symbol, cfg.Timeframe)
	}
	logger.Infof("backtest: fetching %s@%s candles from %s", cfg.Symbol, cfg.Timeframe, s.source.Name())
	fetched, err := s.source.FetchHistory(ctx, cfg.Symbol, cfg.Timeframe, cfg.StartTS, cfg.EndTS, 1000)
	if err != nil {
		return nil, fmt.Errorf("simulator: backfill failed: %w", err)
	}
	if len(fetched) < 2 {
		return nil, fmt.Errorf("simulator: insufficient candles for %s@%s", cfg.Symbol, cfg.Timeframe)
	}
	if err := s.store.Put(ctx, cfg.Symbol, cfg.Timeframe, fetched); err != nil {
		logger.Warnf("backtest: caching fetched candles failed: %v", err)
	}
	return fetched, nil
}
