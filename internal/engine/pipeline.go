// Package engine implements the per-bar signal→risk→size→risk→fill→update
// pipeline shared by the backtest engine and the live paper runner. Both
// drivers run the exact same code here; only the bar delivery differs.
package engine

import (
	"quantsim/internal/broker"
	"quantsim/internal/logger"
	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/risk"
	"quantsim/internal/sizing"
	"quantsim/internal/strategy"
	"quantsim/internal/types"
)

// Pipeline owns one portfolio for the duration of a run or session.
// It is not safe for concurrent use: callers must feed it one bar at a
// time (the backtest loop is sequential, the live runner serializes bars
// through a single worker).
type Pipeline struct {
	Symbol    string
	Strategy  strategy.Strategy
	Risk      *risk.Manager
	Sizer     sizing.Config
	Broker    broker.Executor
	Portfolio *portfolio.Portfolio
	// SlippageBps shifts the fill price against the taker, in basis
	// points of the bar close. Zero disables it.
	SlippageBps float64
}

// HandleBar runs one bar through the full pipeline and appends the
// equity-curve point. The point is appended on every processed bar,
// traded or not; any per-bar failure downgrades the signal to absent and
// is otherwise absorbed. A bar whose timestamp is not after the last
// recorded point is skipped whole, no trade and no point: a reconnecting
// stream can redeliver the last closed candle. Returns the executed
// trade, or nil.
func (p *Pipeline) HandleBar(candle market.Candle) *types.Trade {
	ts := candle.Time()
	if last, ok := p.Portfolio.LastEquityTime(); ok && !ts.After(last) {
		logger.Warnf("engine: %s bar at %s not after last bar %s, skipped", p.Symbol, ts, last)
		return nil
	}

	snap := p.Portfolio.Snapshot()
	price := candle.Close

	var trade *types.Trade
	if sig := p.Strategy.GenerateSignal(candle, snap); sig != nil && price > 0 {
		trade = p.executeSignal(*sig, snap, candle, price)
	}

	equity := p.Portfolio.MarkToMarket(portfolio.Marks{p.Symbol: price})
	p.Portfolio.AppendEquity(ts, equity)
	return trade
}

func (p *Pipeline) executeSignal(sig types.Signal, snap portfolio.Snapshot, candle market.Candle, price float64) *types.Trade {
	if !sig.Side.Valid() {
		logger.Warnf("engine: %s signal with invalid side %q dropped", p.Symbol, sig.Side)
		return nil
	}

	// Gate 1: the raw requested size plus the halt/drawdown check.
	approved := p.Risk.Approve(risk.PhasePreSize, sig, snap, price, p.Symbol)
	if approved == nil {
		return nil
	}

	size, err := sizing.FixedFractional(*approved, snap, p.Symbol, p.Sizer, price)
	if err != nil {
		logger.Warnf("engine: %s sizing failed, signal dropped: %v", p.Symbol, err)
		return nil
	}
	if size <= 0 {
		return nil
	}
	sized := approved.WithSize(size)

	// Gate 2: the sizer computed its size independently of any cap
	// applied above, so it has to pass the rules again.
	final := p.Risk.Approve(risk.PhasePostSize, sized, snap, price, p.Symbol)
	if final == nil {
		return nil
	}

	order := types.Order{
		ID:        broker.NewOrderID(),
		Symbol:    p.Symbol,
		Side:      final.Side,
		Quantity:  final.Size,
		Type:      types.OrderTypeMarket,
		Price:     price,
		Timestamp: candle.Time(),
	}
	fillPrice := p.fillPrice(final.Side, price)
	res := p.Broker.Execute(order, fillPrice)
	if !res.Success || res.Trade == nil {
		logger.Warnf("engine: %s execution declined: %s", p.Symbol, res.Message)
		return nil
	}

	p.Portfolio.Apply(p.Symbol, res.Trade.Side, res.Trade.Quantity, res.Trade.Price)
	if res.Trade.Fee > 0 {
		p.Portfolio.Debit(res.Trade.Fee)
	}
	p.Strategy.OnFill(*final)
	return res.Trade
}

func (p *Pipeline) fillPrice(side types.Side, price float64) float64 {
	if p.SlippageBps <= 0 {
		return price
	}
	shift := price * p.SlippageBps / 10000
	if side == types.SideBuy {
		return price + shift
	}
	return price - shift
}
