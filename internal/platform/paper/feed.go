package paper

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// MarketData is the read side of a gateway. The bridge client satisfies it,
// so paper mode can trade simulated fills over live quotes.
type MarketData interface {
	GetSymbolProperties(ctx context.Context, symbol string) (domain.SymbolProperties, error)
	GetRecentCandles(ctx context.Context, symbol string, count int) ([]domain.Candle, error)
}

type market struct {
	price  float64
	point  float64
	digits int
	spread float64 // points
	vol    float64 // per-bar step as a fraction of price
}

var seedMarkets = map[string]market{
	"EURUSD": {1.0850, 0.00001, 5, 12, 0.0012},
	"GBPUSD": {1.2700, 0.00001, 5, 15, 0.0014},
	"USDCAD": {1.3600, 0.00001, 5, 18, 0.0012},
	"USDCHF": {0.8800, 0.00001, 5, 16, 0.0012},
	"AUDUSD": {0.6550, 0.00001, 5, 14, 0.0015},
	"NZDUSD": {0.6050, 0.00001, 5, 18, 0.0015},
	"USDJPY": {150.00, 0.001, 3, 14, 0.0013},
	"XAUUSD": {2350.0, 0.01, 2, 250, 0.0030},
}

type series struct {
	m      market
	rng    *rand.Rand
	bars   []domain.Candle
	nextAt time.Time
}

// SyntheticFeed produces a seeded random walk per symbol. Each candle
// request advances the walk by one bar.
type SyntheticFeed struct {
	seed  int64
	start time.Time

	mu     sync.Mutex
	series map[string]*series
}

// NewSyntheticFeed creates a feed. The same seed yields the same walk.
func NewSyntheticFeed(seed int64, start time.Time) *SyntheticFeed {
	return &SyntheticFeed{
		seed:   seed,
		start:  start.UTC().Truncate(time.Hour),
		series: make(map[string]*series),
	}
}

func canonical(symbol string) string {
	s := strings.ToUpper(symbol)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if len(s) > 6 {
		s = s[:6]
	}
	return s
}

// Known reports whether the feed can quote symbol.
func (f *SyntheticFeed) Known(symbol string) bool {
	_, ok := seedMarkets[canonical(symbol)]
	return ok
}

func (f *SyntheticFeed) get(symbol string) (*series, error) {
	name := canonical(symbol)
	if s, ok := f.series[name]; ok {
		return s, nil
	}
	m, ok := seedMarkets[name]
	if !ok {
		return nil, fmt.Errorf("paper: %s: %w", symbol, domain.ErrNotFound)
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	s := &series{
		m:      m,
		rng:    rand.New(rand.NewSource(f.seed ^ int64(h.Sum64()))),
		nextAt: f.start.Add(-200 * time.Hour),
	}
	for range 200 {
		s.step()
	}
	f.series[name] = s
	return s, nil
}

func (s *series) step() {
	open := s.m.price
	move := s.rng.NormFloat64() * s.m.vol * open
	closePrice := open + move
	wick := s.rng.Float64() * s.m.vol * open * 0.5
	high := max(open, closePrice) + wick
	low := min(open, closePrice) - wick
	s.bars = append(s.bars, domain.Candle{
		Time:   s.nextAt,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: float64(100 + s.rng.Intn(900)),
	})
	if len(s.bars) > 1000 {
		s.bars = s.bars[len(s.bars)-1000:]
	}
	s.m.price = closePrice
	s.nextAt = s.nextAt.Add(time.Hour)
}

// GetSymbolProperties quotes the last close as the bid.
func (f *SyntheticFeed) GetSymbolProperties(_ context.Context, symbol string) (domain.SymbolProperties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(symbol)
	if err != nil {
		return domain.SymbolProperties{}, err
	}
	return s.props(symbol), nil
}

func (s *series) props(symbol string) domain.SymbolProperties {
	bid := s.m.price
	return domain.SymbolProperties{
		Symbol:          symbol,
		Bid:             bid,
		Ask:             bid + s.m.spread*s.m.point,
		Point:           s.m.point,
		MinStopDistance: 10 * s.m.point,
		Digits:          s.m.digits,
	}
}

// GetRecentCandles advances the walk by one bar and returns the last count bars.
func (f *SyntheticFeed) GetRecentCandles(_ context.Context, symbol string, count int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(symbol)
	if err != nil {
		return nil, err
	}
	s.step()
	if count <= 0 || count > len(s.bars) {
		count = len(s.bars)
	}
	out := make([]domain.Candle, count)
	copy(out, s.bars[len(s.bars)-count:])
	return out, nil
}

// SetPrice moves a symbol's last price.
func (f *SyntheticFeed) SetPrice(symbol string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(symbol)
	if err != nil {
		return err
	}
	s.m.price = price
	return nil
}
