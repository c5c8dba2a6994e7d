package engine

import (
	"testing"
	"time"

	"quantsim/internal/broker"
	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	"quantsim/internal/sizing"
	"quantsim/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStrategy replays a fixed signal per bar index; nil means no
// signal for that bar.
type scriptedStrategy struct {
	signals []*types.Signal
	bar     int
	fills   []types.Signal
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) GenerateSignal(market.Candle, portfolio.Snapshot) *types.Signal {
	defer func() { s.bar++ }()
	if s.bar >= len(s.signals) {
		return nil
	}
	return s.signals[s.bar]
}

func (s *scriptedStrategy) OnFill(sig types.Signal) { s.fills = append(s.fills, sig) }

func candleAt(i int, close float64) market.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	open := base.Add(time.Duration(i) * time.Minute)
	return market.Candle{
		OpenTime:  open.UnixMilli(),
		CloseTime: open.Add(time.Minute).UnixMilli(),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
	}
}

func newPipeline(strat *scriptedStrategy, cash float64, limits risk.Limits, frac float64, feeRate float64) *Pipeline {
	return &Pipeline{
		Symbol:    "BTCUSDT",
		Strategy:  strat,
		Risk:      risk.NewManager(limits),
		Sizer:     sizing.Config{Fraction: frac},
		Broker:    broker.NewPaper(feeRate),
		Portfolio: portfolio.New(cash),
	}
}

func TestHandleBarBuyFillUpdatesPortfolio(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{{Side: types.SideBuy}}}
	// Fraction 0.1 of 10000 at price 100 sizes the order to 10.
	p := newPipeline(strat, 10000, risk.Limits{}, 0.1, 0)

	trade := p.HandleBar(candleAt(0, 100))
	require.NotNil(t, trade)
	assert.Equal(t, types.SideBuy, trade.Side)
	assert.InDelta(t, 10.0, trade.Quantity, 1e-9)
	assert.Equal(t, 100.0, trade.Price)

	pos := p.Portfolio.Position("BTCUSDT")
	assert.InDelta(t, 10.0, pos.Quantity, 1e-9)
	assert.Equal(t, 100.0, pos.AvgPrice)
	assert.InDelta(t, 9000.0, p.Portfolio.Cash(), 1e-9)
	require.Len(t, strat.fills, 1)
}

func TestHandleBarPositionCapLimitsFill(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{{Side: types.SideBuy}}}
	// The sizer asks for the full equity (fraction 1 → 100 units at 100)
	// but the cap holds it to 0.5*10000/100 = 50.
	p := newPipeline(strat, 10000, risk.Limits{MaxPositionPct: 0.5}, 1, 0)

	trade := p.HandleBar(candleAt(0, 100))
	require.NotNil(t, trade)
	assert.InDelta(t, 50.0, trade.Quantity, 1e-9)
	assert.InDelta(t, 5000.0, p.Portfolio.Cash(), 1e-9)
}

func TestHandleBarDrawdownHaltsFurtherTrading(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{
		{Side: types.SideBuy},
		nil,
		{Side: types.SideBuy},
		{Side: types.SideBuy},
	}}
	p := newPipeline(strat, 10000, risk.Limits{MaxDailyLoss: 0.2}, 0.5, 0)

	require.NotNil(t, p.HandleBar(candleAt(0, 100))) // buy 50 at 100
	assert.Nil(t, p.HandleBar(candleAt(1, 40)))      // mark down 30%: 5000+50*40=7000
	// Drawdown from 10000 to 7000 is 30%: the next signal trips the halt.
	assert.Nil(t, p.HandleBar(candleAt(2, 40)))
	assert.True(t, p.Risk.Halted())
	// Still halted even after full recovery.
	assert.Nil(t, p.HandleBar(candleAt(3, 200)))
	assert.True(t, p.Risk.Halted())
}

func TestHandleBarAppendsEquityEveryBar(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{nil, {Side: types.SideBuy}, nil}}
	p := newPipeline(strat, 10000, risk.Limits{}, 0.1, 0)

	for i, price := range []float64{100, 100, 110, 120, 90} {
		p.HandleBar(candleAt(i, price))
	}
	curve := p.Portfolio.EquityCurve()
	require.Len(t, curve, 5)
	for i := 1; i < len(curve); i++ {
		assert.True(t, curve[i-1].TS.Before(curve[i].TS))
	}
}

func TestHandleBarNoSignalLeavesStateUntouched(t *testing.T) {
	strat := &scriptedStrategy{}
	p := newPipeline(strat, 10000, risk.Limits{MaxDailyLoss: 0.2, MaxPositionPct: 0.5}, 0.1, 0.001)

	for i := 0; i < 10; i++ {
		assert.Nil(t, p.HandleBar(candleAt(i, 100)))
	}
	assert.Equal(t, 10000.0, p.Portfolio.Cash())
	assert.Equal(t, 0.0, p.Portfolio.Position("BTCUSDT").Quantity)
	assert.Len(t, p.Portfolio.EquityCurve(), 10)
}

func TestHandleBarFeeDebitedFromCash(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{{Side: types.SideBuy}}}
	p := newPipeline(strat, 10000, risk.Limits{}, 0.1, 0.001)

	trade := p.HandleBar(candleAt(0, 100))
	require.NotNil(t, trade)
	assert.InDelta(t, 10*100*0.001, trade.Fee, 1e-9)
	assert.InDelta(t, 9000.0-trade.Fee, p.Portfolio.Cash(), 1e-9)
}

func TestHandleBarCashConservation(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{
		{Side: types.SideBuy},
		nil,
		{Side: types.SideSell},
	}}
	p := newPipeline(strat, 10000, risk.Limits{}, 0.1, 0)

	p.HandleBar(candleAt(0, 100))
	p.HandleBar(candleAt(1, 100))
	p.HandleBar(candleAt(2, 100))

	// Flat price and zero fees: selling back what was bought restores
	// cash up to the residual position's cost.
	pos := p.Portfolio.Position("BTCUSDT")
	assert.InDelta(t, 10000.0, p.Portfolio.Cash()+pos.Quantity*pos.AvgPrice, 1e-9)
}

func TestHandleBarSlippageMovesFillAgainstTaker(t *testing.T) {
	buy := &scriptedStrategy{signals: []*types.Signal{{Side: types.SideBuy}}}
	p := newPipeline(buy, 10000, risk.Limits{}, 0.1, 0)
	p.SlippageBps = 10

	trade := p.HandleBar(candleAt(0, 100))
	require.NotNil(t, trade)
	assert.InDelta(t, 100.1, trade.Price, 1e-9)

	sell := &scriptedStrategy{signals: []*types.Signal{{Side: types.SideSell}}}
	p2 := newPipeline(sell, 10000, risk.Limits{}, 0.1, 0)
	p2.SlippageBps = 10
	p2.Portfolio.Apply("BTCUSDT", types.SideBuy, 10, 100)

	trade = p2.HandleBar(candleAt(0, 100))
	require.NotNil(t, trade)
	assert.InDelta(t, 99.9, trade.Price, 1e-9)
}

func TestHandleBarSkipsRedeliveredBar(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{nil, {Side: types.SideBuy}}}
	p := newPipeline(strat, 10000, risk.Limits{}, 0.1, 0)

	assert.Nil(t, p.HandleBar(candleAt(0, 100)))
	// Same close time again, as a reconnecting stream can redeliver the
	// last closed candle: no strategy call, no trade, no extra point.
	assert.Nil(t, p.HandleBar(candleAt(0, 100)))
	assert.Equal(t, 1, strat.bar)
	assert.Len(t, p.Portfolio.EquityCurve(), 1)
	assert.Equal(t, 10000.0, p.Portfolio.Cash())

	// An older bar is skipped the same way.
	assert.Nil(t, p.HandleBar(candleAt(-1, 100)))
	assert.Len(t, p.Portfolio.EquityCurve(), 1)

	// The next fresh bar trades normally.
	trade := p.HandleBar(candleAt(1, 100))
	require.NotNil(t, trade)
	assert.Equal(t, types.SideBuy, trade.Side)
	assert.Len(t, p.Portfolio.EquityCurve(), 2)
}

func TestHandleBarInvalidSideDropped(t *testing.T) {
	strat := &scriptedStrategy{signals: []*types.Signal{{Side: "HOLD"}}}
	p := newPipeline(strat, 10000, risk.Limits{}, 0.1, 0)
	assert.Nil(t, p.HandleBar(candleAt(0, 100)))
	assert.Len(t, p.Portfolio.EquityCurve(), 1)
}
