// Package strategy holds signal sources and trend hints.
package strategy

import (
	"strings"
	"sync"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// SignalSource turns recent price history and a trend hint into a
// directional decision. Implementations must be pure and must return a
// NEUTRAL decision when history is insufficient.
type SignalSource interface {
	Name() string
	Evaluate(symbol string, candles []domain.Candle, trend domain.Trend) domain.SignalDecision
}

// TrendSource supplies the higher-timeframe hint for a symbol.
type TrendSource interface {
	Trend(symbol string) domain.Trend
}

// StaticTrend is a fixed per-symbol hint table. Unknown symbols are NEUTRAL.
// Set may be called while the engine runs.
type StaticTrend struct {
	hints map[string]domain.Trend
	mu    sync.RWMutex
}

// NewStaticTrend builds a table from symbol -> BULLISH/BEARISH/NEUTRAL.
// Unrecognised values are treated as NEUTRAL.
func NewStaticTrend(hints map[string]string) *StaticTrend {
	st := &StaticTrend{hints: make(map[string]domain.Trend, len(hints))}
	for sym, h := range hints {
		st.hints[strings.ToUpper(sym)] = ParseTrend(h)
	}
	return st
}

// Trend implements TrendSource.
func (s *StaticTrend) Trend(symbol string) domain.Trend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.hints[strings.ToUpper(symbol)]; ok {
		return t
	}
	return domain.TrendNeutral
}

// Set replaces the hint for one symbol.
func (s *StaticTrend) Set(symbol string, t domain.Trend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints[strings.ToUpper(symbol)] = t
}

// ParseTrend maps text to a Trend, defaulting to NEUTRAL.
func ParseTrend(s string) domain.Trend {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BULLISH", "BULL", "UP":
		return domain.TrendBullish
	case "BEARISH", "BEAR", "DOWN":
		return domain.TrendBearish
	}
	return domain.TrendNeutral
}
