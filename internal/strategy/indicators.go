package strategy

import (
	"math"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// midpoint returns (max high + min low)/2 over the period ending at end
// (inclusive). ok is false when fewer than period candles are available.
func midpoint(c []domain.Candle, end, period int) (float64, bool) {
	start := end - period + 1
	if period <= 0 || start < 0 || end >= len(c) {
		return 0, false
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for i := start; i <= end; i++ {
		hi = math.Max(hi, c[i].High)
		lo = math.Min(lo, c[i].Low)
	}
	return (hi + lo) / 2, true
}

// RSI is Wilder's relative strength index of the final close. It returns 50
// when there is not enough data or no movement.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
	}

	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// ATR is the simple mean true range over the last period candles.
func ATR(c []domain.Candle, period int) float64 {
	if period <= 0 || len(c) <= period {
		return 0
	}
	var sum float64
	for i := len(c) - period; i < len(c); i++ {
		prev := c[i-1].Close
		tr := math.Max(c[i].High-c[i].Low, math.Max(math.Abs(c[i].High-prev), math.Abs(c[i].Low-prev)))
		sum += tr
	}
	return sum / float64(period)
}

// Gap is a fair-value-gap classification.
type Gap int

const (
	GapNone Gap = iota
	GapBullish
	GapBearish
)

// FairValueGap inspects the three closed candles before the last one. A
// bullish gap is an up candle whose neighbours leave a hole above the first
// candle's high; bearish is the mirror.
func FairValueGap(c []domain.Candle) Gap {
	if len(c) < 5 {
		return GapNone
	}
	c1, c2, c3 := c[len(c)-4], c[len(c)-3], c[len(c)-2]
	switch {
	case c2.Close > c2.Open && c1.High < c3.Low:
		return GapBullish
	case c2.Close < c2.Open && c1.Low > c3.High:
		return GapBearish
	}
	return GapNone
}
