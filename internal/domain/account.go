package domain

import "time"

// AccountSnapshot is a point-in-time read of account vitals.
type AccountSnapshot struct {
	Balance     float64   `json:"balance"`
	Equity      float64   `json:"equity"`
	MarginLevel float64   `json:"margin_level"`
	FreeMargin  float64   `json:"free_margin"`
	Profit      float64   `json:"profit"`
	TakenAt     time.Time `json:"taken_at"`
}
