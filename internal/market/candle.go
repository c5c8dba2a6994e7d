package market

import "time"

// Candle is one OHLCV bar. Times are Unix milliseconds.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Time is the bar timestamp used by the engines (bar close).
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.CloseTime).UTC()
}
