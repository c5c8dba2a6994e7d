package strategy

import (
	"encoding/json"
	"fmt"

	"quantsim/internal/logger"
	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/types"

	talib "github.com/markcheno/go-talib"
)

// MomentumParams configures the SMA-crossover strategy.
type MomentumParams struct {
	FastPeriod int `json:"fast_period"`
	SlowPeriod int `json:"slow_period"`
	// MaxHistory bounds the in-memory close window.
	MaxHistory int `json:"max_history"`
}

func (p *MomentumParams) applyDefaults() {
	if p.FastPeriod <= 0 {
		p.FastPeriod = 10
	}
	if p.SlowPeriod <= 0 {
		p.SlowPeriod = 30
	}
	if p.MaxHistory <= 0 {
		p.MaxHistory = 500
	}
}

// Momentum emits BUY when the fast SMA crosses above the slow SMA and
// SELL on the cross back down. It requests a size of zero and leaves
// sizing entirely to the fixed-fractional sizer.
type Momentum struct {
	params MomentumParams
	closes []float64
	// lastAbove tracks the previous fast-vs-slow relation to detect the
	// cross itself rather than the level.
	lastAbove *bool
	fills     int
}

func NewMomentum(raw json.RawMessage) (*Momentum, error) {
	var params MomentumParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("strategy: momentum params: %w", err)
		}
	}
	params.applyDefaults()
	if params.FastPeriod >= params.SlowPeriod {
		return nil, fmt.Errorf("strategy: fast period %d must be below slow period %d", params.FastPeriod, params.SlowPeriod)
	}
	return &Momentum{params: params}, nil
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) GenerateSignal(candle market.Candle, _ portfolio.Snapshot) *types.Signal {
	m.closes = append(m.closes, candle.Close)
	if len(m.closes) > m.params.MaxHistory {
		m.closes = m.closes[len(m.closes)-m.params.MaxHistory:]
	}
	if len(m.closes) < m.params.SlowPeriod {
		return nil
	}
	fast := talib.Sma(m.closes, m.params.FastPeriod)
	slow := talib.Sma(m.closes, m.params.SlowPeriod)
	last := len(m.closes) - 1
	above := fast[last] > slow[last]
	defer func() { m.lastAbove = &above }()

	if m.lastAbove == nil || *m.lastAbove == above {
		return nil
	}
	side := types.SideSell
	if above {
		side = types.SideBuy
	}
	spread := fast[last] - slow[last]
	if spread < 0 {
		spread = -spread
	}
	confidence := 1.0
	if slow[last] > 0 {
		confidence = clamp01(spread / slow[last] * 100)
	}
	return &types.Signal{
		Timestamp:  candle.Time(),
		Side:       side,
		Confidence: confidence,
	}
}

func (m *Momentum) OnFill(sig types.Signal) {
	m.fills++
	logger.Debugf("strategy: momentum fill #%d %s size=%.8f", m.fills, sig.Side, sig.Size)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
