package risk

import (
	"quantsim/internal/portfolio"
	"quantsim/internal/types"
)

// MaxDailyLossRule blocks trading once drawdown from the first recorded
// equity point reaches MaxLossPct. Stateless; the halt latch lives in the
// Manager.
type MaxDailyLossRule struct {
	MaxLossPct float64
}

// Validate reports whether trading may continue. With no equity history
// yet it always passes.
func (r MaxDailyLossRule) Validate(snap portfolio.Snapshot, currentEquity float64) bool {
	start, ok := snap.StartEquity()
	if !ok || start <= 0 {
		return true
	}
	drawdown := (start - currentEquity) / start
	return drawdown < r.MaxLossPct
}

// MaxPositionRule caps a signal so the resulting exposure stays under
// MaxPct of current equity.
type MaxPositionRule struct {
	MaxPct float64
}

// Adjust returns the signal unchanged when it fits, a capped copy when it
// exceeds the limit, and nil when no position can be opened at all
// (non-positive price, equity, or computed cap).
func (r MaxPositionRule) Adjust(snap portfolio.Snapshot, symbol string, sig types.Signal, price float64) *types.Signal {
	if price <= 0 {
		return nil
	}
	equity := snap.TotalValue(portfolio.Marks{symbol: price})
	if equity <= 0 {
		return nil
	}
	maxQty := r.MaxPct * equity / price
	if maxQty <= 0 {
		return nil
	}
	proposed := sig.Size
	if proposed < 0 {
		proposed = -proposed
	}
	if proposed <= maxQty {
		return &sig
	}
	capped := sig.WithSize(maxQty)
	return &capped
}
