// Package risk gates signals before and after position sizing and owns
// the per-session trading halt.
package risk

import (
	"sync"

	"quantsim/internal/logger"
	"quantsim/internal/portfolio"
	"quantsim/internal/types"
)

// State of the risk manager.
type State int

const (
	StateNormal State = iota
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

// Phase names which approval pass is running. The engines call Approve
// twice per signal bar: PhasePreSize with the strategy's raw requested
// size (catches an oversized explicit request and checks the halt gate
// early), PhasePostSize with the sizer's output (the sizer computes its
// size independently of any earlier cap, so it must be re-validated).
type Phase string

const (
	PhasePreSize  Phase = "pre_size"
	PhasePostSize Phase = "post_size"
)

// Limits are the rule thresholds, usually taken from config. A zero
// threshold disables that rule.
type Limits struct {
	MaxDailyLoss   float64 `toml:"max_daily_loss" json:"max_daily_loss"`
	MaxPositionPct float64 `toml:"max_position_pct" json:"max_position_pct"`
}

// Manager evaluates risk rules and owns the NORMAL→HALTED machine.
// HALTED is terminal: once the daily-loss rule trips, every later signal
// for this manager's session is rejected, even if equity recovers.
// One Manager per run/session; both approval phases must go through the
// same instance.
type Manager struct {
	dailyLoss MaxDailyLossRule
	position  MaxPositionRule

	mu    sync.Mutex
	state State
}

func NewManager(limits Limits) *Manager {
	return &Manager{
		dailyLoss: MaxDailyLossRule{MaxLossPct: limits.MaxDailyLoss},
		position:  MaxPositionRule{MaxPct: limits.MaxPositionPct},
		state:     StateNormal,
	}
}

// State returns the current machine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Halted reports whether the trading halt has latched.
func (m *Manager) Halted() bool {
	return m.State() == StateHalted
}

// Approve runs the rules against a candidate signal. It returns nil when
// the signal must be dropped; a non-nil result is the (possibly
// size-capped) signal to continue with. A daily-loss breach transitions
// to HALTED; a position-cap block drops the signal for this bar only.
func (m *Manager) Approve(phase Phase, sig types.Signal, snap portfolio.Snapshot, price float64, symbol string) *types.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateHalted {
		logger.Debugf("risk: %s rejected in %s phase, trading halted", symbol, phase)
		return nil
	}
	currentEquity := snap.TotalValue(portfolio.Marks{symbol: price})
	if m.dailyLoss.MaxLossPct > 0 && !m.dailyLoss.Validate(snap, currentEquity) {
		m.state = StateHalted
		logger.Errorf("risk: max daily loss breached for %s (equity=%.2f), halting session", symbol, currentEquity)
		return nil
	}
	if m.position.MaxPct <= 0 {
		return &sig
	}
	adjusted := m.position.Adjust(snap, symbol, sig, price)
	if adjusted == nil {
		logger.Infof("risk: %s signal blocked in %s phase (price=%.8f equity=%.2f)", symbol, phase, price, currentEquity)
		return nil
	}
	if adjusted.Size != sig.Size {
		logger.Infof("risk: %s size capped %.8f -> %.8f in %s phase", symbol, sig.Size, adjusted.Size, phase)
	}
	return adjusted
}
