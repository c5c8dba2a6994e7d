package types

import "time"

// Side of a signal or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType enumerates supported order types. Only market orders are
// executed by the paper broker; limit is carried for completeness.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Signal is a directional trade intent emitted by a strategy before risk
// checks. Size carries magnitude only; Side carries direction. Size is
// reassigned by the position sizer and may be capped by risk.
type Signal struct {
	Timestamp  time.Time `json:"timestamp"`
	Side       Side      `json:"side"`
	Confidence float64   `json:"confidence"`
	Size       float64   `json:"size"`
}

// WithSize returns a copy of the signal with the size replaced.
func (s Signal) WithSize(size float64) Signal {
	s.Size = size
	return s
}

// Order is handed to the broker for execution. For market orders Price is
// advisory only; the fill happens at the mark price.
type Order struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Quantity  float64   `json:"quantity"`
	Type      OrderType `json:"type"`
	Price     float64   `json:"price,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Trade records an executed order. Never mutated after creation.
type Trade struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
}

// Notional is quantity*price, before fees.
func (t Trade) Notional() float64 {
	return t.Quantity * t.Price
}

// ExecutionResult is produced once per broker execute call.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Trade   *Trade `json:"trade,omitempty"`
	Message string `json:"message,omitempty"`
}
