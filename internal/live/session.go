package live

import (
	"time"

	"quantsim/internal/portfolio"
	"quantsim/internal/types"
)

// SessionState is the final artifact of one live paper session.
type SessionState struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Interval  string             `json:"interval"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Bars      int                `json:"bars"`
	Halted    bool               `json:"halted"`
	Portfolio portfolio.Snapshot `json:"portfolio"`
	Trades    []types.Trade      `json:"trades"`
}

// Status is the point-in-time view served while a session is running.
type Status struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	StartTime time.Time `json:"start_time"`
	Running   bool      `json:"running"`
	Bars      int       `json:"bars"`
	Trades    int       `json:"trades"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Halted    bool      `json:"halted"`
}
