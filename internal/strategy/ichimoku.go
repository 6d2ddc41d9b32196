package strategy

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// IchimokuParams configures the built-in source.
type IchimokuParams struct {
	Tenkan     int
	Kijun      int
	SenkouB    int
	Shift      int
	RSIPeriod  int
	ATRPeriod  int
	MinCandles int
	MinATR     float64
}

// DefaultIchimokuParams returns 9/26/52 with a 26-bar cloud shift.
func DefaultIchimokuParams() IchimokuParams {
	return IchimokuParams{
		Tenkan:     9,
		Kijun:      26,
		SenkouB:    52,
		Shift:      26,
		RSIPeriod:  14,
		ATRPeriod:  14,
		MinCandles: 50,
		MinATR:     0.0001,
	}
}

// Ichimoku combines a cloud trend filter with tenkan/kijun crosses and
// fair-value gaps.
type Ichimoku struct {
	p IchimokuParams
}

// NewIchimoku creates the source.
func NewIchimoku(p IchimokuParams) *Ichimoku { return &Ichimoku{p: p} }

func (s *Ichimoku) Name() string { return "ichimoku" }

// cloudTop is the upper cloud edge at the last candle: the larger of senkou
// A and senkou B computed Shift bars earlier. Senkou B is skipped when the
// history is too short for it.
func (s *Ichimoku) cloudTop(c []domain.Candle) (float64, bool) {
	at := len(c) - 1 - s.p.Shift
	t, ok1 := midpoint(c, at, s.p.Tenkan)
	k, ok2 := midpoint(c, at, s.p.Kijun)
	if !ok1 || !ok2 {
		return 0, false
	}
	top := (t + k) / 2
	if b, ok := midpoint(c, at, s.p.SenkouB); ok {
		top = math.Max(top, b)
	}
	return top, true
}

// Evaluate implements SignalSource.
func (s *Ichimoku) Evaluate(symbol string, c []domain.Candle, trend domain.Trend) domain.SignalDecision {
	d := domain.SignalDecision{Symbol: symbol, Signal: domain.SignalNeutral}
	if len(c) < s.p.MinCandles {
		d.Reason = "No Data"
		return d
	}
	last := c[len(c)-1]
	d.Price = last.Close
	d.At = last.Time

	if atr := ATR(c, s.p.ATRPeriod); atr < s.p.MinATR {
		d.Reason = "Low volatility"
		return d
	}

	d.Confidence = 0.5
	d.Reason = "No setup"

	end := len(c) - 1
	tenkan, ok1 := midpoint(c, end, s.p.Tenkan)
	kijun, ok2 := midpoint(c, end, s.p.Kijun)
	cloud, ok3 := s.cloudTop(c)
	if !ok1 || !ok2 || !ok3 {
		return d
	}
	rsi := RSI(domain.Closes(c), s.p.RSIPeriod)
	gap := FairValueGap(c)
	price := last.Close

	switch {
	case price > cloud && trend != domain.TrendBearish:
		if tenkan > kijun && rsi < 70 {
			d.Signal, d.Confidence, d.Reason = domain.SignalBuy, 0.85, fmt.Sprintf("Golden Cross (RSI %d)", int(rsi))
		} else if gap == GapBullish && price > kijun && rsi < 70 {
			d.Signal, d.Confidence, d.Reason = domain.SignalBuySMC, 0.80, "Bullish FVG"
		}
	case price < cloud && trend != domain.TrendBullish:
		if tenkan < kijun && rsi > 30 {
			d.Signal, d.Confidence, d.Reason = domain.SignalSell, 0.85, fmt.Sprintf("Death Cross (RSI %d)", int(rsi))
		} else if gap == GapBearish && price < kijun && rsi > 30 {
			d.Signal, d.Confidence, d.Reason = domain.SignalSellSMC, 0.80, "Bearish FVG"
		}
	}
	return d
}
