// Package report computes summary statistics from an equity curve and a
// trade ledger.
package report

import (
	"math"
	"time"

	"quantsim/internal/portfolio"
	"quantsim/internal/types"
)

// Summary condenses one run or session into headline numbers.
type Summary struct {
	StartEquity    float64   `json:"start_equity"`
	FinalEquity    float64   `json:"final_equity"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	Bars           int       `json:"bars"`
	Trades         int       `json:"trades"`
	BuyCount       int       `json:"buy_count"`
	SellCount      int       `json:"sell_count"`
	FeesPaid       float64   `json:"fees_paid"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

// Build derives a Summary from the curve and ledger. An empty curve
// yields a zero Summary.
func Build(curve []portfolio.EquityPoint, trades []types.Trade) Summary {
	var sum Summary
	if len(curve) == 0 {
		sum.Trades = len(trades)
		return sum
	}
	sum.Bars = len(curve)
	sum.Start = curve[0].TS
	sum.End = curve[len(curve)-1].TS
	sum.StartEquity = curve[0].Value
	sum.FinalEquity = curve[len(curve)-1].Value
	sum.Profit = sum.FinalEquity - sum.StartEquity
	if sum.StartEquity != 0 {
		sum.ReturnPct = sum.Profit / sum.StartEquity * 100
	}

	peak := math.Inf(-1)
	valley := math.Inf(1)
	maxDD := 0.0
	runningPeak := curve[0].Value
	for _, pt := range curve {
		if pt.Value > peak {
			peak = pt.Value
		}
		if pt.Value < valley {
			valley = pt.Value
		}
		if pt.Value > runningPeak {
			runningPeak = pt.Value
		}
		if runningPeak > 0 {
			dd := (runningPeak - pt.Value) / runningPeak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	sum.EquityPeak = peak
	sum.EquityValley = valley
	sum.MaxDrawdownPct = maxDD * 100

	sum.Trades = len(trades)
	for _, t := range trades {
		sum.FeesPaid += t.Fee
		switch t.Side {
		case types.SideBuy:
			sum.BuyCount++
		case types.SideSell:
			sum.SellCount++
		}
	}
	return sum
}
