package broker

import (
	"testing"
	"time"

	"quantsim/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteFillsAtMarkPrice(t *testing.T) {
	p := NewPaper(0.001)
	order := types.Order{
		ID:        NewOrderID(),
		Symbol:    "BTCUSDT",
		Side:      types.SideBuy,
		Quantity:  2,
		Type:      types.OrderTypeMarket,
		Price:     100,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	res := p.Execute(order, 101)
	require.True(t, res.Success)
	require.NotNil(t, res.Trade)
	assert.Equal(t, order.ID, res.Trade.OrderID)
	assert.Equal(t, 101.0, res.Trade.Price)
	assert.InDelta(t, 2*101*0.001, res.Trade.Fee, 1e-12)
	assert.Equal(t, order.Timestamp, res.Trade.Timestamp)
}

func TestExecuteFeeUsesAbsoluteQuantity(t *testing.T) {
	p := NewPaper(0.0005)
	res := p.Execute(types.Order{Side: types.SideSell, Quantity: -3, Price: 50}, 50)
	require.True(t, res.Success)
	assert.InDelta(t, 3*50*0.0005, res.Trade.Fee, 1e-12)
}

func TestZeroFeeRate(t *testing.T) {
	p := NewPaper(0)
	res := p.Execute(types.Order{Side: types.SideBuy, Quantity: 10, Price: 100}, 100)
	assert.Equal(t, 0.0, res.Trade.Fee)

	// Negative rates are treated as zero.
	p = NewPaper(-1)
	res = p.Execute(types.Order{Side: types.SideBuy, Quantity: 10, Price: 100}, 100)
	assert.Equal(t, 0.0, res.Trade.Fee)
}

func TestTradesReturnsLedgerInOrder(t *testing.T) {
	p := NewPaper(0)
	p.Execute(types.Order{ID: "a", Side: types.SideBuy, Quantity: 1}, 10)
	p.Execute(types.Order{ID: "b", Side: types.SideSell, Quantity: 1}, 11)

	trades := p.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "a", trades[0].OrderID)
	assert.Equal(t, "b", trades[1].OrderID)

	// The returned slice is a copy.
	trades[0].OrderID = "mutated"
	assert.Equal(t, "a", p.Trades()[0].OrderID)
}
