package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/metrics"
)

// invalidate re-evaluates each open position with a NEUTRAL trend hint and
// closes those whose signal has reversed with enough confidence. It returns
// the positions still open and the number closed.
func (c *Controller) invalidate(ctx context.Context, positions []domain.Position) ([]domain.Position, int) {
	kept := make([]domain.Position, 0, len(positions))
	closed := 0
	for _, pos := range positions {
		if c.reversed(ctx, pos) {
			closed++
			continue
		}
		kept = append(kept, pos)
	}
	return kept, closed
}

func (c *Controller) reversed(ctx context.Context, pos domain.Position) (closed bool) {
	log := c.logger.With(slog.String("symbol", pos.Symbol), slog.Int64("ticket", pos.Ticket))
	defer func() {
		if r := recover(); r != nil {
			log.Error("invalidation panic", slog.Any("panic", r))
			closed = false
		}
	}()

	if _, ok := c.Instrument(pos.Symbol); !ok {
		return false
	}
	candles, err := c.d.Gateway.GetRecentCandles(ctx, pos.Symbol, c.cfg.CandleCount)
	if err != nil || len(candles) < c.cfg.MinCandles {
		return false
	}

	d := c.d.Source.Evaluate(pos.Symbol, candles, domain.TrendNeutral)
	d.At = c.now().UTC()
	side, ok := d.Signal.Side()
	if !ok || side != pos.Side.Opposite() || d.Confidence < c.cfg.InvalidationConf {
		return false
	}

	ok, err = c.d.Gateway.ClosePosition(ctx, pos)
	if err != nil || !ok {
		log.Warn("invalidation close failed", slog.Any("error", err))
		return false
	}

	metrics.Invalidations.WithLabelValues(pos.Symbol).Inc()
	log.Warn("position invalidated",
		slog.String("signal", string(d.Signal)),
		slog.Float64("confidence", d.Confidence),
		slog.String("reason", d.Reason),
		slog.Float64("profit", pos.Profit),
	)
	if c.d.Notifier != nil {
		c.d.Notifier.Notify(ctx, EventInvalidated, "Position invalidated",
			fmt.Sprintf("%s %s #%d closed on %s %.0f%% (%s), P/L %.2f",
				pos.Side, pos.Symbol, pos.Ticket, d.Signal, d.Confidence*100, d.Reason, pos.Profit))
	}
	c.audit(ctx, EventInvalidated, map[string]any{
		"ticket":     pos.Ticket,
		"symbol":     pos.Symbol,
		"signal":     string(d.Signal),
		"confidence": d.Confidence,
		"profit":     pos.Profit,
	})
	c.recordSignal(ctx, domain.SignalRecord{Decision: d, Mode: "invalidation", Required: c.cfg.InvalidationConf, Outcome: domain.OutcomeInvalidated})
	return true
}
