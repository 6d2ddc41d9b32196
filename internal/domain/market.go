package domain

import "time"

// SymbolProperties are the live trading properties of a symbol.
// MinStopDistance is in price units.
type SymbolProperties struct {
	Symbol          string  `json:"symbol"`
	Bid             float64 `json:"bid"`
	Ask             float64 `json:"ask"`
	Point           float64 `json:"point"`
	MinStopDistance float64 `json:"min_stop_distance"`
	Digits          int     `json:"digits"`
}

// SpreadPoints returns the current spread in broker points.
func (p SymbolProperties) SpreadPoints() float64 {
	if p.Point <= 0 {
		return 0
	}
	return (p.Ask - p.Bid) / p.Point
}

// Candle is one bar of price history.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Closes extracts close prices.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
