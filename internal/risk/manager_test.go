package risk

import (
	"testing"

	"quantsim/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveNormalPassThrough(t *testing.T) {
	m := NewManager(Limits{MaxDailyLoss: 0.2, MaxPositionPct: 0.5})
	sig := types.Signal{Side: types.SideBuy, Size: 10}
	out := m.Approve(PhasePreSize, sig, snapWithCurve(10000, 10000), 100, "BTCUSDT")
	require.NotNil(t, out)
	assert.Equal(t, 10.0, out.Size)
	assert.Equal(t, StateNormal, m.State())
}

func TestApproveCapsOversizedSignal(t *testing.T) {
	m := NewManager(Limits{MaxPositionPct: 0.5})
	sig := types.Signal{Side: types.SideBuy, Size: 100}
	out := m.Approve(PhasePostSize, sig, snapWithCurve(10000, 10000), 100, "BTCUSDT")
	require.NotNil(t, out)
	assert.InDelta(t, 50.0, out.Size, 1e-9)
	// A cap never halts.
	assert.Equal(t, StateNormal, m.State())
}

func TestApproveHaltsOnDrawdownAndStaysHalted(t *testing.T) {
	m := NewManager(Limits{MaxDailyLoss: 0.2})
	sig := types.Signal{Side: types.SideBuy, Size: 1}

	// 30% below the session's first equity point.
	out := m.Approve(PhasePreSize, sig, snapWithCurve(7000, 10000, 9000), 1, "BTCUSDT")
	assert.Nil(t, out)
	assert.Equal(t, StateHalted, m.State())

	// Recovery does not lift the halt.
	out = m.Approve(PhasePreSize, sig, snapWithCurve(12000, 10000, 9000, 12000), 1, "BTCUSDT")
	assert.Nil(t, out)
	assert.True(t, m.Halted())
}

func TestApproveBothPhasesShareTheLatch(t *testing.T) {
	m := NewManager(Limits{MaxDailyLoss: 0.2})
	sig := types.Signal{Side: types.SideBuy, Size: 1}
	assert.Nil(t, m.Approve(PhasePreSize, sig, snapWithCurve(7000, 10000), 1, "BTCUSDT"))
	assert.Nil(t, m.Approve(PhasePostSize, sig, snapWithCurve(10000, 10000), 1, "BTCUSDT"))
}

func TestApproveZeroLimitsDisableRules(t *testing.T) {
	m := NewManager(Limits{})
	sig := types.Signal{Side: types.SideBuy, Size: 1e9}
	out := m.Approve(PhasePreSize, sig, snapWithCurve(7000, 10000), 100, "BTCUSDT")
	require.NotNil(t, out)
	assert.Equal(t, 1e9, out.Size)
	assert.Equal(t, StateNormal, m.State())
}
