package report

import (
	"testing"
	"time"

	"quantsim/internal/portfolio"
	"quantsim/internal/types"

	"github.com/stretchr/testify/assert"
)

func curveOf(values ...float64) []portfolio.EquityPoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]portfolio.EquityPoint, len(values))
	for i, v := range values {
		out[i] = portfolio.EquityPoint{TS: base.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return out
}

func TestBuildEmptyCurve(t *testing.T) {
	sum := Build(nil, []types.Trade{{Side: types.SideBuy}})
	assert.Equal(t, 0, sum.Bars)
	assert.Equal(t, 1, sum.Trades)
	assert.Equal(t, 0.0, sum.FinalEquity)
}

func TestBuildReturnAndDrawdown(t *testing.T) {
	sum := Build(curveOf(10000, 12000, 9000, 10500), nil)
	assert.Equal(t, 4, sum.Bars)
	assert.Equal(t, 10000.0, sum.StartEquity)
	assert.Equal(t, 10500.0, sum.FinalEquity)
	assert.InDelta(t, 5.0, sum.ReturnPct, 1e-9)
	// Peak 12000 to 9000 is a 25% drawdown.
	assert.InDelta(t, 25.0, sum.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 12000.0, sum.EquityPeak)
	assert.Equal(t, 9000.0, sum.EquityValley)
}

func TestBuildTradeCounters(t *testing.T) {
	trades := []types.Trade{
		{Side: types.SideBuy, Fee: 0.5},
		{Side: types.SideSell, Fee: 0.6},
		{Side: types.SideBuy, Fee: 0.4},
	}
	sum := Build(curveOf(1000, 1001), trades)
	assert.Equal(t, 3, sum.Trades)
	assert.Equal(t, 2, sum.BuyCount)
	assert.Equal(t, 1, sum.SellCount)
	assert.InDelta(t, 1.5, sum.FeesPaid, 1e-9)
}

func TestBuildMonotonicCurveHasZeroDrawdown(t *testing.T) {
	sum := Build(curveOf(1000, 1100, 1200), nil)
	assert.Equal(t, 0.0, sum.MaxDrawdownPct)
}
