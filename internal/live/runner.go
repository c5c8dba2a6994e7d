// Package live drives the paper-trading pipeline from an asynchronous,
// reconnecting market data stream.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quantsim/internal/broker"
	"quantsim/internal/engine"
	"quantsim/internal/logger"
	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	"quantsim/internal/sizing"
	"quantsim/internal/strategy"
	"quantsim/internal/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TradeStore persists session results; implemented by store/gormstore.
type TradeStore interface {
	SaveSession(ctx context.Context, state SessionState) error
	SaveTrade(ctx context.Context, sessionID string, trade types.Trade) error
}

// Config for one live paper session.
type Config struct {
	Symbol      string
	Interval    string
	InitialCash float64
	FeeRate     float64
	SlippageBps float64
	Sizing      sizing.Config
	Risk        risk.Limits
	// QueueSize bounds the bar queue between the stream receive loop
	// and the single pipeline worker. When the worker lags this far
	// behind, the receive loop blocks (backpressure) rather than drop
	// or reorder bars.
	QueueSize int
}

// Runner consumes a bar stream and applies the shared pipeline one bar
// at a time. The stream side never mutates state: all portfolio and risk
// mutation happens on the single worker goroutine, so bar N+1 cannot
// start before bar N finished. The session ends only on ctx cancellation.
type Runner struct {
	cfg      Config
	source   market.Source
	paper    *broker.Paper
	riskMgr  *risk.Manager
	pipeline *engine.Pipeline
	store    TradeStore

	mu      sync.Mutex
	id      string
	started time.Time
	trades  int
	running bool
}

func NewRunner(cfg Config, strat strategy.Strategy, source market.Source, store TradeStore) (*Runner, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("live: symbol required")
	}
	if cfg.InitialCash <= 0 {
		return nil, fmt.Errorf("live: initial cash must be positive")
	}
	if source == nil {
		return nil, fmt.Errorf("live: market source required")
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	paper := broker.NewPaper(cfg.FeeRate)
	riskMgr := risk.NewManager(cfg.Risk)
	return &Runner{
		cfg:     cfg,
		source:  source,
		paper:   paper,
		riskMgr: riskMgr,
		store:   store,
		pipeline: &engine.Pipeline{
			Symbol:      cfg.Symbol,
			Strategy:    strat,
			Risk:        riskMgr,
			Sizer:       cfg.Sizing,
			Broker:      paper,
			Portfolio:   portfolio.New(cfg.InitialCash),
			SlippageBps: cfg.SlippageBps,
		},
	}, nil
}

// Status reports the session mid-flight.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.pipeline.Portfolio.Snapshot()
	equity := snap.Cash
	if n := len(snap.EquityCurve); n > 0 {
		equity = snap.EquityCurve[n-1].Value
	}
	return Status{
		ID:        r.id,
		Symbol:    r.cfg.Symbol,
		Interval:  r.cfg.Interval,
		StartTime: r.started,
		Running:   r.running,
		// One curve point per processed bar; stale redeliveries are
		// skipped by the pipeline and not counted.
		Bars:   len(snap.EquityCurve),
		Trades: r.trades,
		Equity: equity,
		Cash:   snap.Cash,
		Halted: r.riskMgr.Halted(),
	}
}

// Run subscribes to the stream and processes bars until ctx is
// cancelled, then returns the final session state. Stream failures are
// handled inside the source (reconnect/fallback) and never end the
// session. Cancellation lets the in-flight bar finish: a bar is applied
// fully or not at all.
func (r *Runner) Run(ctx context.Context) (SessionState, error) {
	events, err := r.source.Subscribe(ctx, r.cfg.Symbol, r.cfg.Interval, market.SubscribeOptions{
		Buffer: r.cfg.QueueSize,
		OnDisconnect: func(err error) {
			logger.Warnf("live: stream disconnect for %s: %v", r.cfg.Symbol, err)
		},
	})
	if err != nil {
		return SessionState{}, fmt.Errorf("live: subscribe: %w", err)
	}

	r.mu.Lock()
	r.id = uuid.NewString()
	r.started = time.Now().UTC()
	r.running = true
	r.mu.Unlock()
	logger.Infof("live: session %s started for %s@%s", r.id, r.cfg.Symbol, r.cfg.Interval)

	queue := make(chan market.Candle, r.cfg.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	// Receive loop: orders bars into the queue and nothing else. A full
	// queue blocks this goroutine, not the websocket read inside the
	// source (the source buffers independently).
	g.Go(func() error {
		defer close(queue)
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				select {
				case queue <- ev.Candle:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	// Single worker: the only goroutine that touches portfolio, risk
	// state, and the ledger.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case candle, ok := <-queue:
				if !ok {
					return nil
				}
				r.handleBar(gctx, candle)
			}
		}
	})

	runErr := g.Wait()
	if closeErr := r.source.Close(); closeErr != nil {
		logger.Warnf("live: closing source: %v", closeErr)
	}

	state := r.finalState()
	if r.store != nil {
		// Persist with a fresh context: the run context is already done.
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.SaveSession(saveCtx, state); err != nil {
			logger.Warnf("live: persisting session %s failed: %v", state.ID, err)
		}
	}
	logger.Infof("live: session %s ended after %d bars, %d trades", state.ID, state.Bars, len(state.Trades))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return state, runErr
	}
	return state, nil
}

func (r *Runner) handleBar(ctx context.Context, candle market.Candle) {
	// r.mu also guards the portfolio against concurrent Status reads;
	// only this worker ever mutates it.
	r.mu.Lock()
	trade := r.pipeline.HandleBar(candle)
	if trade != nil {
		r.trades++
	}
	id := r.id
	r.mu.Unlock()
	if trade != nil && r.store != nil {
		if err := r.store.SaveTrade(ctx, id, *trade); err != nil {
			logger.Warnf("live: persisting trade failed: %v", err)
		}
	}
}

func (r *Runner) finalState() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	snap := r.pipeline.Portfolio.Snapshot()
	return SessionState{
		ID:        r.id,
		Symbol:    r.cfg.Symbol,
		Interval:  r.cfg.Interval,
		StartTime: r.started,
		EndTime:   time.Now().UTC(),
		Bars:      len(snap.EquityCurve),
		Halted:    r.riskMgr.Halted(),
		Portfolio: snap,
		Trades:    r.paper.Trades(),
	}
}
