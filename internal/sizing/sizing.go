// Package sizing maps an approved signal to a target quantity.
package sizing

import (
	"fmt"
	"math"

	"quantsim/internal/portfolio"
	"quantsim/internal/types"
)

// Config controls fixed-fractional sizing. Fraction is the share of
// equity committed per trade. UseMarkEquity switches the equity basis
// from average cost (the default, which lags true equity while a
// position is open) to mark-to-market at the current price.
type Config struct {
	Fraction      float64 `toml:"fraction" json:"fraction"`
	UseMarkEquity bool    `toml:"use_mark_equity" json:"use_mark_equity"`
}

// FixedFractional sizes a position as a fraction of portfolio equity:
// size = equity*fraction/price. The requested size on the signal is
// deliberately ignored; the post-sizing risk gate re-validates whatever
// comes out of here.
func FixedFractional(_ types.Signal, snap portfolio.Snapshot, symbol string, cfg Config, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("sizing: non-positive price %.8f", price)
	}
	equity := snap.CostBasisEquity()
	if cfg.UseMarkEquity {
		equity = snap.TotalValue(portfolio.Marks{symbol: price})
	}
	size := equity * cfg.Fraction / price
	if math.IsNaN(size) || math.IsInf(size, 0) {
		return 0, fmt.Errorf("sizing: non-finite size for equity=%.2f price=%.8f", equity, price)
	}
	return size, nil
}
