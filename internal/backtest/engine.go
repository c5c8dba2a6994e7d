package backtest

import (
	"context"
	"fmt"

	"quantsim/internal/broker"
	"quantsim/internal/engine"
	"quantsim/internal/logger"
	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	"quantsim/internal/strategy"
	"quantsim/internal/types"
)

// Engine replays an ordered bar sequence through the shared pipeline.
// Fully synchronous and deterministic given the bar sequence and a
// deterministic strategy.
type Engine struct {
	cfg      RunConfig
	strat    strategy.Strategy
	riskMgr  *risk.Manager
	paper    *broker.Paper
	pipeline *engine.Pipeline

	// OnBar, when set, is invoked after each processed bar with the
	// bar index, candle, and current equity. The simulator uses it to
	// persist equity snapshots.
	OnBar func(idx int, candle market.Candle, equity float64)
}

// Result is the engine's output contract to reporting and persistence.
type Result struct {
	Final  portfolio.Snapshot
	Trades []types.Trade
	Stats  RunStats
	Halted bool
}

func NewEngine(cfg RunConfig) (*Engine, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("backtest: symbol required")
	}
	if cfg.InitialCash <= 0 {
		return nil, fmt.Errorf("backtest: initial cash must be positive")
	}
	strat, err := strategy.New(cfg.Strategy, cfg.StrategyParams)
	if err != nil {
		return nil, err
	}
	riskMgr := risk.NewManager(cfg.Risk)
	paper := broker.NewPaper(cfg.FeeRate)
	e := &Engine{
		cfg:     cfg,
		strat:   strat,
		riskMgr: riskMgr,
		paper:   paper,
		pipeline: &engine.Pipeline{
			Symbol:      cfg.Symbol,
			Strategy:    strat,
			Risk:        riskMgr,
			Sizer:       cfg.Sizing,
			Broker:      paper,
			Portfolio:   portfolio.New(cfg.InitialCash),
			SlippageBps: cfg.SlippageBps,
		},
	}
	return e, nil
}

// Run processes every candle in strictly ascending time order and returns the
// final portfolio state with the full equity curve. Per-bar issues are
// absorbed; the loop ends only on sequence exhaustion or ctx cancel.
func (e *Engine) Run(ctx context.Context, candles []market.Candle) (Result, error) {
	if len(candles) == 0 {
		return Result{}, fmt.Errorf("backtest: no candles to replay")
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].CloseTime <= candles[i-1].CloseTime {
			return Result{}, fmt.Errorf("backtest: candles not in strictly ascending time order")
		}
	}

	pf := e.pipeline.Portfolio
	peak := e.cfg.InitialCash
	valley := e.cfg.InitialCash
	maxDrawdown := 0.0
	wins, losses := 0, 0

	for idx, candle := range candles {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		prevPos := pf.Position(e.cfg.Symbol)
		trade := e.pipeline.HandleBar(candle)
		if trade != nil && trade.Side == types.SideSell {
			realized := (trade.Price-prevPos.AvgPrice)*trade.Quantity - trade.Fee
			if realized >= 0 {
				wins++
			} else {
				losses++
			}
		}

		curve := pf.EquityCurve()
		equity := curve[len(curve)-1].Value
		if equity > peak {
			peak = equity
		}
		if equity < valley {
			valley = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
		if e.OnBar != nil {
			e.OnBar(idx, candle, equity)
		}
	}

	trades := e.paper.Trades()
	final := pf.Snapshot()
	stats := summarize(e.cfg.InitialCash, final, trades, wins, losses)
	stats.MaxDrawdownPct = maxDrawdown * 100
	stats.EquityPeak = peak
	stats.EquityValley = valley
	stats.Halted = e.riskMgr.Halted()
	logger.Infof("backtest: %s finished, %d bars, %d trades, final equity %.2f",
		e.cfg.Symbol, stats.Bars, stats.Trades, stats.FinalEquity)
	return Result{Final: final, Trades: trades, Stats: stats, Halted: stats.Halted}, nil
}

func summarize(initialCash float64, final portfolio.Snapshot, trades []types.Trade, wins, losses int) RunStats {
	stats := RunStats{
		Bars:   len(final.EquityCurve),
		Trades: len(trades),
		Wins:   wins,
		Losses: losses,
	}
	if n := len(final.EquityCurve); n > 0 {
		stats.FinalEquity = final.EquityCurve[n-1].Value
	} else {
		stats.FinalEquity = final.Cash
	}
	stats.Profit = stats.FinalEquity - initialCash
	if initialCash > 0 {
		stats.ReturnPct = stats.Profit / initialCash * 100
	}
	if total := wins + losses; total > 0 {
		stats.WinRate = float64(wins) / float64(total)
	}
	return stats
}
