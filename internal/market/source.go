package market

import "context"

// Event is one closed candle delivered by a live subscription.
type Event struct {
	Symbol   string
	Interval string
	Candle   Candle
}

// SubscribeOptions tunes a live subscription.
type SubscribeOptions struct {
	// Buffer is the event channel capacity; 0 picks a default.
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

// SourceStats exposes connection health counters.
type SourceStats struct {
	Reconnects      int
	SubscribeErrors int
	LastError       string
}

// Source unifies historical fetch and live streaming over one market data
// backend. Subscribe yields closed candles in time order until ctx is
// cancelled or the connection drops; resilience (reconnect, fallback) is
// layered on by Resilient, not required from implementations.
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]Candle, error)
	Subscribe(ctx context.Context, symbol, interval string, opts SubscribeOptions) (<-chan Event, error)
	Name() string
	Stats() SourceStats
	Close() error
}
