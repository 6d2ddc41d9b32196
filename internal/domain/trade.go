package domain

import "time"

// TradeRecord is the persisted record of an executed entry.
type TradeRecord struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Source     string    `json:"source"`
	Attempts   int       `json:"attempts"`
	OpenedAt   time.Time `json:"opened_at"`
}

// SignalOutcome records what the engine did with a decision.
type SignalOutcome string

const (
	OutcomeExecuted      SignalOutcome = "executed"
	OutcomeLowConfidence SignalOutcome = "low_confidence"
	OutcomeNeutral       SignalOutcome = "neutral"
	OutcomeReservedBusy  SignalOutcome = "already_reserved"
	OutcomeCapacity      SignalOutcome = "capacity"
	OutcomeInvalidated   SignalOutcome = "invalidated"
)

// SignalRecord is the audit row of a signal decision.
type SignalRecord struct {
	Decision SignalDecision `json:"decision"`
	Mode     string         `json:"mode"`
	Required float64        `json:"required"`
	Outcome  SignalOutcome  `json:"outcome"`
}

// Deal is a closed trade taken from broker history.
type Deal struct {
	Ticket   int64     `json:"ticket"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Volume   float64   `json:"volume"`
	Price    float64   `json:"price"`
	Profit   float64   `json:"profit"`
	ClosedAt time.Time `json:"closed_at"`
}
