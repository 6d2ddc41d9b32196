package domain

import "time"

// Signal is the directional output of a signal source.
type Signal string

const (
	SignalNeutral Signal = "NEUTRAL"
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalBuySMC  Signal = "BUY_SMC"
	SignalSellSMC Signal = "SELL_SMC"
)

// Side maps a directional signal to an order side. ok is false for NEUTRAL.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalBuy, SignalBuySMC:
		return SideBuy, true
	case SignalSell, SignalSellSMC:
		return SideSell, true
	}
	return "", false
}

// Directional reports whether s asks for a trade.
func (s Signal) Directional() bool {
	_, ok := s.Side()
	return ok
}

// Trend is the higher-timeframe hint passed to a signal source.
type Trend string

const (
	TrendNeutral Trend = "NEUTRAL"
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
)

// SignalDecision is one evaluation of one symbol.
type SignalDecision struct {
	Symbol     string    `json:"symbol"`
	Signal     Signal    `json:"signal"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Price      float64   `json:"price,omitempty"`
	At         time.Time `json:"at"`
}
