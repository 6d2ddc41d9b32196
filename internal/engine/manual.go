package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/risk"
)

// ManualOrder is an operator override entry.
type ManualOrder struct {
	Symbol string      `json:"symbol"`
	Side   domain.Side `json:"side"`
	// Lot overrides risk sizing when > 0.
	Lot float64 `json:"lot,omitempty"`
}

// ManualTrade submits an operator order without consulting the signal
// source. Kill-switch, capacity, reservation, margin and sizing rules still
// apply, and the call returns once the execution has finished.
func (c *Controller) ManualTrade(ctx context.Context, o ManualOrder) (executor.Outcome, error) {
	side := domain.Side(strings.ToUpper(string(o.Side)))
	if side != domain.SideBuy && side != domain.SideSell {
		return executor.Outcome{}, fmt.Errorf("engine: side %q: %w", o.Side, domain.ErrInvalidOrder)
	}
	if o.Lot < 0 {
		return executor.Outcome{}, fmt.Errorf("engine: negative lot: %w", domain.ErrInvalidOrder)
	}
	inst, ok := c.Instrument(strings.ToUpper(o.Symbol))
	if !ok {
		inst, ok = c.Instrument(o.Symbol)
	}
	if !ok {
		return executor.Outcome{}, fmt.Errorf("engine: %s: %w", o.Symbol, domain.ErrUnknownSymbol)
	}
	if c.d.Kill.Active() {
		return executor.Outcome{}, domain.ErrKillSwitch
	}

	reserved := c.d.Executor.Reservations().Symbols()
	positions, err := c.d.Gateway.GetOpenPositions(ctx)
	if err != nil {
		return executor.Outcome{}, fmt.Errorf("engine: open positions: %w", err)
	}
	state := risk.ComputeCapacity(c.d.Capacity, positions, reserved, c.classOf)
	if ok, reason := state.Admit(inst.Symbol, inst.Class); !ok {
		return executor.Outcome{}, fmt.Errorf("engine: %s: %w", reason, domain.ErrCapacityFull)
	}

	req := executor.Request{
		Instrument: inst,
		Side:       side,
		Decision: domain.SignalDecision{
			Symbol:     inst.Symbol,
			Signal:     domain.Signal(side),
			Confidence: 1,
			Reason:     "Manual",
			At:         c.now().UTC(),
		},
		Volume: o.Lot,
		Source: "manual",
	}
	c.logger.Info("manual trade requested",
		slog.String("symbol", inst.Symbol),
		slog.String("side", string(side)),
		slog.Float64("lot", o.Lot),
	)
	out, err := c.d.Executor.ExecuteNow(ctx, req, executor.Admission{
		Open:    state.Open(),
		Limit:   c.d.Capacity.Limit(),
		Counted: reserved,
	})
	c.audit(ctx, "manual_trade", map[string]any{
		"symbol": inst.Symbol,
		"side":   string(side),
		"lot":    out.Volume,
		"filled": out.Filled,
		"ticket": out.Ticket,
	})
	return out, err
}
