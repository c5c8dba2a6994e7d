package portfolio

import (
	"time"

	"quantsim/internal/logger"
	"quantsim/internal/types"
)

// Position is an open holding for one symbol. Quantity never goes
// negative: a sell larger than the holding clamps to zero and the excess
// is not tracked as a short. AvgPrice is a cost-weighted average, updated
// only when the position grows.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// MarketValue is quantity at the given mark.
func (p Position) MarketValue(mark float64) float64 {
	return p.Quantity * mark
}

// EquityPoint is one entry of the equity curve.
type EquityPoint struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Marks maps symbol to the current mark price.
type Marks map[string]float64

// Portfolio holds cash, per-symbol positions and the equity curve for one
// run or session. It is owned exclusively by the driving engine; strategy
// and risk code only ever see Snapshot copies.
type Portfolio struct {
	cash      float64
	positions map[string]*Position
	curve     []EquityPoint
}

func New(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]*Position),
	}
}

func (pf *Portfolio) Cash() float64 { return pf.cash }

// Position returns the holding for symbol, or a zero position.
func (pf *Portfolio) Position(symbol string) Position {
	if p, ok := pf.positions[symbol]; ok {
		return *p
	}
	return Position{Symbol: symbol}
}

// Apply mutates cash and the symbol position for one fill. This is the
// only mutation path; it never fails, validation happens upstream in the
// risk gates. A sell in excess of the holding clamps quantity to zero and
// still credits the full proceeds.
func (pf *Portfolio) Apply(symbol string, side types.Side, qty, price float64) {
	pos, ok := pf.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol, AvgPrice: price}
		pf.positions[symbol] = pos
	}
	switch side {
	case types.SideBuy:
		totalCost := pos.AvgPrice*pos.Quantity + qty*price
		pos.Quantity += qty
		if pos.Quantity > 0 {
			pos.AvgPrice = totalCost / pos.Quantity
		}
		pf.cash -= qty * price
	case types.SideSell:
		pos.Quantity -= qty
		if pos.Quantity < 0 {
			pos.Quantity = 0
		}
		pf.cash += qty * price
	}
	logger.Debugf("portfolio: %s %s qty=%.8f price=%.8f cash=%.2f", symbol, side, qty, price, pf.cash)
}

// Debit subtracts a fee or other charge from cash.
func (pf *Portfolio) Debit(amount float64) {
	pf.cash -= amount
}

// MarkToMarket values the portfolio at the given marks, falling back to a
// position's average price when no mark is supplied for its symbol.
func (pf *Portfolio) MarkToMarket(marks Marks) float64 {
	value := pf.cash
	for sym, pos := range pf.positions {
		mark, ok := marks[sym]
		if !ok {
			mark = pos.AvgPrice
		}
		value += pos.MarketValue(mark)
	}
	return value
}

// CostBasisEquity is cash plus holdings valued at their average cost.
func (pf *Portfolio) CostBasisEquity() float64 {
	value := pf.cash
	for _, pos := range pf.positions {
		value += pos.Quantity * pos.AvgPrice
	}
	return value
}

// AppendEquity records one equity-curve point. Out-of-order timestamps
// are dropped; the curve stays strictly time-ascending.
func (pf *Portfolio) AppendEquity(ts time.Time, value float64) {
	if n := len(pf.curve); n > 0 && !pf.curve[n-1].TS.Before(ts) {
		logger.Warnf("portfolio: dropping out-of-order equity point at %s", ts)
		return
	}
	pf.curve = append(pf.curve, EquityPoint{TS: ts, Value: value})
}

// LastEquityTime returns the timestamp of the newest curve point, or
// ok=false when no bar has been recorded yet.
func (pf *Portfolio) LastEquityTime() (time.Time, bool) {
	if len(pf.curve) == 0 {
		return time.Time{}, false
	}
	return pf.curve[len(pf.curve)-1].TS, true
}

// EquityCurve returns a copy of the curve.
func (pf *Portfolio) EquityCurve() []EquityPoint {
	out := make([]EquityPoint, len(pf.curve))
	copy(out, pf.curve)
	return out
}

// Snapshot hands out a read-only view for strategies and risk rules.
func (pf *Portfolio) Snapshot() Snapshot {
	positions := make(map[string]Position, len(pf.positions))
	for sym, pos := range pf.positions {
		positions[sym] = *pos
	}
	curve := make([]EquityPoint, len(pf.curve))
	copy(curve, pf.curve)
	return Snapshot{Cash: pf.cash, Positions: positions, EquityCurve: curve}
}

// Snapshot is an immutable copy of portfolio state. Mutating it has no
// effect on the live portfolio.
type Snapshot struct {
	Cash        float64             `json:"cash"`
	Positions   map[string]Position `json:"positions"`
	EquityCurve []EquityPoint       `json:"equity_curve,omitempty"`
}

// TotalValue values the snapshot at the given marks, defaulting to each
// position's average price.
func (s Snapshot) TotalValue(marks Marks) float64 {
	value := s.Cash
	for sym, pos := range s.Positions {
		mark, ok := marks[sym]
		if !ok {
			mark = pos.AvgPrice
		}
		value += pos.MarketValue(mark)
	}
	return value
}

// CostBasisEquity mirrors Portfolio.CostBasisEquity for snapshots.
func (s Snapshot) CostBasisEquity() float64 {
	value := s.Cash
	for _, pos := range s.Positions {
		value += pos.Quantity * pos.AvgPrice
	}
	return value
}

// StartEquity returns the first equity-curve value, or ok=false when no
// bar has been recorded yet.
func (s Snapshot) StartEquity() (float64, bool) {
	if len(s.EquityCurve) == 0 {
		return 0, false
	}
	return s.EquityCurve[0].Value, true
}
