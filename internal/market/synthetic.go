package market

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SyntheticSource generates a random-walk price series. It backs tests
// and serves as the degraded fallback when a configured live source is
// permanently unavailable.
type SyntheticSource struct {
	startPrice float64
	interval   time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	price float64
	stats SourceStats
}

func NewSyntheticSource(startPrice float64, interval time.Duration, seed int64) *SyntheticSource {
	if startPrice <= 0 {
		startPrice = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SyntheticSource{
		startPrice: startPrice,
		interval:   interval,
		rng:        rand.New(rand.NewSource(seed)),
		price:      startPrice,
	}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) next(openTime time.Time) Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	drift := s.rng.NormFloat64() * s.price * 0.001
	open := s.price
	closeP := open + drift
	if closeP <= 0 {
		closeP = open
	}
	high := open
	if closeP > high {
		high = closeP
	}
	low := open
	if closeP < low {
		low = closeP
	}
	s.price = closeP
	return Candle{
		OpenTime:  openTime.UnixMilli(),
		CloseTime: openTime.Add(s.interval).UnixMilli(),
		Open:      open,
		High:      high * 1.0005,
		Low:       low * 0.9995,
		Close:     closeP,
		Volume:    s.rng.Float64() * 5,
		Trades:    int64(s.rng.Intn(50)),
	}
}

// FetchHistory synthesizes limit bars ending at end (or now).
func (s *SyntheticSource) FetchHistory(_ context.Context, _, _ string, _, end int64, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	endT := time.Now().UTC()
	if end > 0 {
		endT = time.UnixMilli(end).UTC()
	}
	start := endT.Add(-time.Duration(limit) * s.interval)
	out := make([]Candle, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, s.next(start.Add(time.Duration(i)*s.interval)))
	}
	return out, nil
}

// Subscribe emits one bar per interval until ctx is cancelled.
func (s *SyntheticSource) Subscribe(ctx context.Context, symbol, interval string, opts SubscribeOptions) (<-chan Event, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	out := make(chan Event, buffer)
	if opts.OnConnect != nil {
		opts.OnConnect()
	}
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				candle := s.next(now.UTC().Add(-s.interval))
				select {
				case out <- Event{Symbol: symbol, Interval: interval, Candle: candle}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *SyntheticSource) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *SyntheticSource) Close() error { return nil }
