package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"quantsim/internal/logger"

	"github.com/adshao/go-binance/v2"
	"github.com/tidwall/gjson"
)

// BinanceSource serves history from the spot REST /api/v3/klines endpoint
// and live candles from the kline websocket stream.
type BinanceSource struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	stats SourceStats
	stops []*streamStop
}

// streamStop closes a websocket stop channel exactly once. Both the
// subscription monitor goroutine (on ctx cancel) and Close can race to
// stop the same stream during shutdown.
type streamStop struct {
	c    chan struct{}
	once sync.Once
}

func (s *streamStop) signal() {
	s.once.Do(func() { close(s.c) })
}

func NewBinanceSource(base string) *BinanceSource {
	if base == "" {
		base = "https://api.binance.com"
	}
	return &BinanceSource{
		baseURL: base,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *BinanceSource) Name() string { return "binance" }

func (b *BinanceSource) FetchHistory(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]Candle, error) {
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("binance: symbol/interval required")
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	u, _ := url.Parse(b.baseURL)
	u.Path = "/api/v3/klines"
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if start > 0 {
		q.Set("startTime", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		q.Set("endTime", strconv.FormatInt(end, 10))
	}
	u.RawQuery = q.Encode()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("binance: status %d: %s", resp.StatusCode, body)
	}
	return parseKlines(body), nil
}

// parseKlines decodes the kline array-of-arrays payload. Binance encodes
// prices as strings and timestamps as numbers.
func parseKlines(body []byte) []Candle {
	rows := gjson.ParseBytes(body).Array()
	out := make([]Candle, 0, len(rows))
	for _, row := range rows {
		cols := row.Array()
		if len(cols) < 9 {
			continue
		}
		out = append(out, Candle{
			OpenTime:  cols[0].Int(),
			Open:      cols[1].Float(),
			High:      cols[2].Float(),
			Low:       cols[3].Float(),
			Close:     cols[4].Float(),
			Volume:    cols[5].Float(),
			CloseTime: cols[6].Int(),
			Trades:    cols[8].Int(),
		})
	}
	return out
}

// Subscribe streams closed klines. The returned channel closes when the
// websocket drops or ctx is cancelled; callers wanting automatic
// reconnection wrap this source in Resilient.
func (b *BinanceSource) Subscribe(ctx context.Context, symbol, interval string, opts SubscribeOptions) (<-chan Event, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	out := make(chan Event, buffer)

	handler := func(ev *binance.WsKlineEvent) {
		if ev == nil || !ev.Kline.IsFinal {
			return
		}
		k := ev.Kline
		candle := Candle{
			OpenTime:  k.StartTime,
			CloseTime: k.EndTime,
			Open:      parsePrice(k.Open),
			High:      parsePrice(k.High),
			Low:       parsePrice(k.Low),
			Close:     parsePrice(k.Close),
			Volume:    parsePrice(k.Volume),
			Trades:    k.TradeNum,
		}
		select {
		case out <- Event{Symbol: ev.Symbol, Interval: interval, Candle: candle}:
		case <-ctx.Done():
		}
	}
	errHandler := func(err error) {
		b.mu.Lock()
		b.stats.LastError = err.Error()
		b.mu.Unlock()
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(err)
		}
		logger.Warnf("binance: kline stream error for %s@%s: %v", symbol, interval, err)
	}

	doneC, stopC, err := binance.WsKlineServe(symbol, interval, handler, errHandler)
	if err != nil {
		b.mu.Lock()
		b.stats.SubscribeErrors++
		b.stats.LastError = err.Error()
		b.mu.Unlock()
		return nil, fmt.Errorf("binance: subscribe %s@%s: %w", symbol, interval, err)
	}
	stop := &streamStop{c: stopC}
	b.mu.Lock()
	b.stops = append(b.stops, stop)
	b.mu.Unlock()
	if opts.OnConnect != nil {
		opts.OnConnect()
	}

	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
			stop.signal()
			<-doneC
		case <-doneC:
		}
	}()
	return out, nil
}

func (b *BinanceSource) Stats() SourceStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *BinanceSource) Close() error {
	b.mu.Lock()
	stops := b.stops
	b.stops = nil
	b.mu.Unlock()
	for _, stop := range stops {
		stop.signal()
	}
	return nil
}

func parsePrice(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
