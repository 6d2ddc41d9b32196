// Package snapshot renders an entry chart for an executed trade and
// uploads it to object storage.
package snapshot

import (
	"fmt"
	"html"
	"io"
	"math"
	"strconv"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

const (
	width   = 960
	height  = 480
	padLeft = 16
	padTop  = 32
	axisW   = 84
	padBot  = 24
)

// Chart is the input of Render.
type Chart struct {
	Title      string
	Candles    []domain.Candle
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Digits     int
}

type scale struct{ lo, hi float64 }

func (s scale) y(p float64) float64 {
	plot := float64(height - padTop - padBot)
	if s.hi == s.lo {
		return float64(padTop) + plot/2
	}
	return float64(padTop) + (s.hi-p)/(s.hi-s.lo)*plot
}

func bounds(c Chart) scale {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, k := range c.Candles {
		lo = math.Min(lo, k.Low)
		hi = math.Max(hi, k.High)
	}
	for _, p := range []float64{c.Entry, c.StopLoss, c.TakeProfit} {
		if p > 0 {
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
	}
	if math.IsInf(lo, 0) {
		return scale{0, 1}
	}
	pad := (hi - lo) * 0.05
	return scale{lo - pad, hi + pad}
}

// Render writes c as a standalone SVG document: candles, then dashed
// entry, stop-loss and take-profit lines labelled on the right axis.
func Render(w io.Writer, c Chart) error {
	s := bounds(c)
	plotW := float64(width - padLeft - axisW)
	n := len(c.Candles)
	step := plotW
	if n > 0 {
		step = plotW / float64(n)
	}
	body := math.Max(1, step*0.6)
	price := func(p float64) string { return strconv.FormatFloat(p, 'f', c.Digits, 64) }

	bw := &errWriter{w: w}
	bw.printf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n", width, height, width, height)
	bw.printf(`<rect width="100%%" height="100%%" fill="#131722"/>` + "\n")
	bw.printf(`<text x="%d" y="20" fill="#d1d4dc" font-family="monospace" font-size="14">%s</text>`+"\n", padLeft, html.EscapeString(c.Title))

	for i, k := range c.Candles {
		x := float64(padLeft) + step*float64(i) + step/2
		color := "#26a69a"
		if k.Close < k.Open {
			color = "#ef5350"
		}
		top, bot := s.y(math.Max(k.Open, k.Close)), s.y(math.Min(k.Open, k.Close))
		bw.printf(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`+"\n", x, s.y(k.High), x, s.y(k.Low), color)
		bw.printf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n", x-body/2, top, body, math.Max(1, bot-top), color)
	}

	levels := []struct {
		label string
		p     float64
		color string
	}{
		{"ENTRY", c.Entry, "#2962ff"},
		{"SL", c.StopLoss, "#ef5350"},
		{"TP", c.TakeProfit, "#26a69a"},
	}
	right := float64(width - axisW)
	for _, l := range levels {
		if l.p <= 0 {
			continue
		}
		y := s.y(l.p)
		bw.printf(`<line x1="%d" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-dasharray="6,4"/>`+"\n", padLeft, y, right, y, l.color)
		bw.printf(`<text x="%.1f" y="%.1f" fill="%s" font-family="monospace" font-size="11">%s %s</text>`+"\n", right+4, y+4, l.color, l.label, price(l.p))
	}
	bw.printf("</svg>\n")
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
