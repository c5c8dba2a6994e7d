// Package strategy defines the signal-generation contract consumed by the
// backtest engine and the live paper runner.
package strategy

import (
	"encoding/json"
	"fmt"

	"quantsim/internal/market"
	"quantsim/internal/portfolio"
	"quantsim/internal/types"
)

// Strategy turns bars into trade intents. GenerateSignal receives a
// read-only portfolio snapshot and must not assume mutations to it take
// effect; returning nil means no intent for this bar. OnFill notifies the
// strategy after its signal was executed.
type Strategy interface {
	Name() string
	GenerateSignal(candle market.Candle, snap portfolio.Snapshot) *types.Signal
	OnFill(sig types.Signal)
}

// New builds a registered strategy from its name and raw JSON params.
func New(name string, params json.RawMessage) (Strategy, error) {
	if name == "" {
		name = "momentum"
	}
	if err := ValidateParams(name, params); err != nil {
		return nil, err
	}
	switch name {
	case "momentum":
		return NewMomentum(params)
	default:
		return nil, fmt.Errorf("strategy: unknown strategy %q", name)
	}
}
