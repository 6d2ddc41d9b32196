package domain

import "time"

// NewsEvent is one high-impact economic calendar entry.
type NewsEvent struct {
	Time    time.Time `json:"time"`
	Country string    `json:"country"`
	Title   string    `json:"title"`
	Impact  string    `json:"impact"`
}
