package domain

// Side is the direction of a position or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing direction.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Position is an open broker position. The broker owns its lifecycle; the
// engine only observes it each cycle and requests modifications or closure.
type Position struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"open_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Profit     float64 `json:"profit"`
}

// TotalProfit sums floating profit across positions.
func TotalProfit(positions []Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.Profit
	}
	return total
}
