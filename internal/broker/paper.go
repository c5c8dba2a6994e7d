// Package broker simulates order execution against a single mark price.
package broker

import (
	"sync"
	"time"

	"quantsim/internal/logger"
	"quantsim/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Paper fills every market order in full at the supplied mark price and
// charges a proportional fee. No rejection, latency, or partial fills;
// extending those means replacing this type behind the Executor interface.
type Paper struct {
	feeRate decimal.Decimal

	mu     sync.Mutex
	trades []types.Trade
}

// Executor is what the engines program against.
type Executor interface {
	Execute(order types.Order, markPrice float64) types.ExecutionResult
}

const DefaultFeeRate = 0.0005

func NewPaper(feeRate float64) *Paper {
	if feeRate < 0 {
		feeRate = 0
	}
	return &Paper{feeRate: decimal.NewFromFloat(feeRate)}
}

// Execute builds the trade for an order at markPrice and appends it to
// the ledger. Success is always true.
func (p *Paper) Execute(order types.Order, markPrice float64) types.ExecutionResult {
	qty := decimal.NewFromFloat(order.Quantity).Abs()
	price := decimal.NewFromFloat(markPrice)
	fee, _ := qty.Mul(price).Mul(p.feeRate).Float64()

	ts := order.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	trade := types.Trade{
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     markPrice,
		Fee:       fee,
		Timestamp: ts,
	}
	p.mu.Lock()
	p.trades = append(p.trades, trade)
	p.mu.Unlock()

	logger.Debugf("broker: filled %s %s qty=%.8f price=%.8f fee=%.8f", order.Side, order.Symbol, order.Quantity, markPrice, fee)
	return types.ExecutionResult{Success: true, Trade: &trade}
}

// Trades returns a copy of the ledger in execution order.
func (p *Paper) Trades() []types.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// NewOrderID mints a broker-scoped order id.
func NewOrderID() string {
	return "ord-" + uuid.NewString()
}
