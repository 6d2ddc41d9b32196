// Package trailing ratchets stop-losses on open positions according to a
// per-asset-class tier table.
package trailing

import (
	"context"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/metrics"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"golang.org/x/sync/errgroup"
)

// Tier locks Lock of the profit distance once the distance exceeds Threshold.
type Tier struct {
	Threshold float64
	Lock      float64
}

// TierTable holds tiers per class, highest threshold first.
type TierTable map[domain.AssetClass][]Tier

// NewTierTable copies in and sorts every class by descending threshold.
func NewTierTable(in map[domain.AssetClass][]Tier) TierTable {
	out := make(TierTable, len(in))
	for class, tiers := range in {
		sorted := append([]Tier(nil), tiers...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold > sorted[j].Threshold })
		out[class] = sorted
	}
	return out
}

// Match returns the first tier whose threshold distance exceeds.
func (t TierTable) Match(class domain.AssetClass, distance float64) (Tier, bool) {
	for _, tier := range t[class] {
		if distance > tier.Threshold {
			return tier, true
		}
	}
	return Tier{}, false
}

// Gateway is the subset of the market gateway the engine needs.
type Gateway interface {
	GetSymbolProperties(ctx context.Context, symbol string) (domain.SymbolProperties, error)
	ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (bool, error)
}

// Engine applies the tier table to open positions.
type Engine struct {
	gw           Gateway
	tiers        TierTable
	bufferPoints float64
	classOf      func(string) (domain.AssetClass, bool)
	workers      int
	logger       *slog.Logger
}

// NewEngine creates an Engine. bufferPoints is added to the broker's minimum
// stop distance; workers bounds concurrent gateway calls.
func NewEngine(gw Gateway, tiers TierTable, bufferPoints float64, classOf func(string) (domain.AssetClass, bool), workers int, logger *slog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		gw:           gw,
		tiers:        tiers,
		bufferPoints: bufferPoints,
		classOf:      classOf,
		workers:      workers,
		logger:       logger.With(slog.String("component", "trailing")),
	}
}

// Candidate computes the stop a position should move to. ok is false when no
// tier applies or the candidate would not strictly tighten the current stop.
func (e *Engine) Candidate(pos domain.Position, props domain.SymbolProperties, class domain.AssetClass) (float64, bool) {
	minStop := props.MinStopDistance + e.bufferPoints*props.Point

	var distance float64
	switch pos.Side {
	case domain.SideBuy:
		distance = props.Bid - pos.OpenPrice
	case domain.SideSell:
		distance = pos.OpenPrice - props.Ask
	default:
		return 0, false
	}

	tier, ok := e.tiers.Match(class, distance)
	if !ok {
		return 0, false
	}

	var lock float64
	if pos.Side == domain.SideBuy {
		lock = pos.OpenPrice + distance*tier.Lock
		if limit := props.Bid - minStop; lock > limit {
			lock = limit
		}
	} else {
		lock = pos.OpenPrice - distance*tier.Lock
		if limit := props.Ask + minStop; lock < limit {
			lock = limit
		}
	}
	lock = risk.NormalizePrice(lock, props.Digits)

	if pos.StopLoss == 0 {
		return lock, true
	}
	if pos.Side == domain.SideBuy {
		return lock, lock > pos.StopLoss
	}
	return lock, lock < pos.StopLoss
}

// Apply evaluates every position and requests modifications where the stop
// improves. Failures are logged; the next cycle retries naturally. It returns
// the number of successful modifications.
func (e *Engine) Apply(ctx context.Context, positions []domain.Position) int {
	moved := make([]bool, len(positions))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, pos := range positions {
		g.Go(func() error {
			moved[i] = e.applyOne(ctx, pos)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range moved {
		if ok {
			n++
		}
	}
	return n
}

func (e *Engine) applyOne(ctx context.Context, pos domain.Position) bool {
	log := e.logger.With(
		slog.String("symbol", pos.Symbol),
		slog.Int64("ticket", pos.Ticket),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("trailing: panic", slog.Any("panic", r))
		}
	}()

	class, ok := e.classOf(pos.Symbol)
	if !ok {
		return false
	}
	props, err := e.gw.GetSymbolProperties(ctx, pos.Symbol)
	if err != nil {
		log.Warn("trailing: symbol properties unavailable", slog.String("error", err.Error()))
		return false
	}

	stop, ok := e.Candidate(pos, props, class)
	if !ok {
		return false
	}

	done, err := e.gw.ModifyStops(ctx, pos.Ticket, stop, pos.TakeProfit)
	if err != nil || !done {
		attrs := []any{slog.Float64("new_sl", stop), slog.Float64("old_sl", pos.StopLoss)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		log.Warn("trailing: modify failed", attrs...)
		return false
	}

	metrics.TrailingMoves.WithLabelValues(pos.Symbol).Inc()
	log.Info("trailing: stop moved",
		slog.Float64("old_sl", pos.StopLoss),
		slog.Float64("new_sl", stop),
	)
	return true
}
