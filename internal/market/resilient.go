package market

import (
	"context"
	"sync"
	"time"

	"quantsim/internal/logger"

	"github.com/jpillora/backoff"
)

// ResilientConfig tunes the reconnect loop.
type ResilientConfig struct {
	// ReconnectDelay is the fixed wait between reconnect attempts.
	ReconnectDelay time.Duration
	// MaxAttempts is the number of consecutive failed subscribes before
	// the primary source is declared permanently unavailable and the
	// fallback takes over. 0 means never give up on the primary.
	MaxAttempts int
	// Fallback substitutes the primary after MaxAttempts failures.
	// Typically a SyntheticSource; nil disables degraded mode.
	Fallback Source
}

// Resilient wraps a Source with reconnect-on-failure and an optional
// degraded-mode fallback. Consumers see a single uninterrupted event
// channel: transient stream failures are absorbed here, never surfaced
// per item. This is the stream-level contract the live runner relies on.
type Resilient struct {
	primary Source
	cfg     ResilientConfig

	mu       sync.Mutex
	stats    SourceStats
	degraded bool
}

func NewResilient(primary Source, cfg ResilientConfig) *Resilient {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Resilient{primary: primary, cfg: cfg}
}

func (r *Resilient) Name() string { return r.primary.Name() + "+resilient" }

func (r *Resilient) FetchHistory(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]Candle, error) {
	return r.active().FetchHistory(ctx, symbol, interval, start, end, limit)
}

func (r *Resilient) active() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.degraded && r.cfg.Fallback != nil {
		return r.cfg.Fallback
	}
	return r.primary
}

// Degraded reports whether the fallback source has taken over.
func (r *Resilient) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// Subscribe keeps an inner subscription alive for the life of ctx. The
// returned channel closes only on cancellation.
func (r *Resilient) Subscribe(ctx context.Context, symbol, interval string, opts SubscribeOptions) (<-chan Event, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	out := make(chan Event, buffer)
	go r.loop(ctx, symbol, interval, opts, out)
	return out, nil
}

func (r *Resilient) loop(ctx context.Context, symbol, interval string, opts SubscribeOptions, out chan<- Event) {
	defer close(out)
	delay := &backoff.Backoff{
		Min:    r.cfg.ReconnectDelay,
		Max:    r.cfg.ReconnectDelay,
		Factor: 1,
		Jitter: false,
	}
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		src := r.active()
		inner, err := src.Subscribe(ctx, symbol, interval, SubscribeOptions{
			Buffer:       cap(out),
			OnConnect:    opts.OnConnect,
			OnDisconnect: opts.OnDisconnect,
		})
		if err != nil {
			failures++
			r.recordError(err)
			logger.Warnf("market: subscribe to %s failed (attempt %d): %v", src.Name(), failures, err)
			if r.cfg.MaxAttempts > 0 && failures >= r.cfg.MaxAttempts {
				r.enterDegraded()
				failures = 0
				continue
			}
			if !sleepCtx(ctx, delay.Duration()) {
				return
			}
			continue
		}
		failures = 0
		if r.forward(ctx, inner, out) {
			return
		}
		// Inner stream ended without cancellation: reconnect after the
		// fixed delay. The consumer is never told.
		r.mu.Lock()
		r.stats.Reconnects++
		r.mu.Unlock()
		logger.Warnf("market: stream from %s ended, reconnecting in %s", src.Name(), r.cfg.ReconnectDelay)
		if !sleepCtx(ctx, delay.Duration()) {
			return
		}
	}
}

// forward pumps inner into out until inner closes or ctx is done.
// Returns true when the loop should terminate (cancellation).
func (r *Resilient) forward(ctx context.Context, inner <-chan Event, out chan<- Event) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-inner:
			if !ok {
				return false
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return true
			}
		}
	}
}

func (r *Resilient) enterDegraded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.degraded || r.cfg.Fallback == nil {
		return
	}
	r.degraded = true
	logger.Errorf("market: %s permanently unavailable, switching to %s", r.primary.Name(), r.cfg.Fallback.Name())
}

func (r *Resilient) recordError(err error) {
	r.mu.Lock()
	r.stats.SubscribeErrors++
	r.stats.LastError = err.Error()
	r.mu.Unlock()
}

func (r *Resilient) Stats() SourceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	inner := r.primary.Stats()
	stats.SubscribeErrors += inner.SubscribeErrors
	if stats.LastError == "" {
		stats.LastError = inner.LastError
	}
	return stats
}

func (r *Resilient) Close() error {
	err := r.primary.Close()
	if r.cfg.Fallback != nil {
		if ferr := r.cfg.Fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
