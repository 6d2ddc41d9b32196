package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Runner drives the controller on a fixed tick and carries the operator's
// start/stop switch. Cycles never overlap.
type Runner struct {
	ctrl       *Controller
	resolver   domain.SymbolResolver
	configured []domain.Instrument
	interval   time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	kick      chan struct{}
}

// NewRunner creates a stopped Runner. resolver may be nil, in which case the
// configured symbols are used as-is.
func NewRunner(ctrl *Controller, resolver domain.SymbolResolver, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		ctrl:       ctrl,
		resolver:   resolver,
		configured: ctrl.Instruments(),
		interval:   interval,
		logger:     logger.With(slog.String("component", "runner")),
		kick:       make(chan struct{}, 1),
	}
}

// Start resolves the monitored symbols with the broker and enables cycles.
// The first cycle runs immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if r.resolver != nil {
		list, err := r.resolve(ctx)
		if err != nil {
			return err
		}
		r.ctrl.SetInstruments(list)
	}

	r.mu.Lock()
	r.running = true
	r.startedAt = time.Now().UTC()
	r.mu.Unlock()

	names := make([]string, 0, len(r.configured))
	for _, inst := range r.ctrl.Instruments() {
		names = append(names, inst.Symbol)
	}
	r.logger.Info("engine started", slog.Any("symbols", names), slog.Duration("interval", r.interval))

	select {
	case r.kick <- struct{}{}:
	default:
	}
	return nil
}

func (r *Runner) resolve(ctx context.Context) ([]domain.Instrument, error) {
	out := make([]domain.Instrument, 0, len(r.configured))
	for _, inst := range r.configured {
		sym, err := r.resolver.ResolveSymbol(ctx, inst.Name)
		if err != nil {
			r.logger.Warn("symbol not available at broker, skipping",
				slog.String("name", inst.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		inst.Symbol = sym
		out = append(out, inst)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("engine: no configured symbol resolved: %w", domain.ErrUnknownSymbol)
	}
	return out, nil
}

// Stop disables new cycles. An in-flight cycle and detached executions
// finish normally.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.running = false
		r.logger.Info("engine stopped")
	}
}

// Running reports whether cycles are enabled.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// StartedAt is when the engine was last started.
func (r *Runner) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Run ticks until ctx is cancelled, running one cycle per tick while the
// engine is started.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner loop stopped")
			return nil
		case <-ticker.C:
		case <-r.kick:
		}
		if !r.Running() {
			continue
		}
		rep := r.ctrl.RunCycle(ctx)
		r.logger.Debug("cycle done",
			slog.String("result", rep.Result),
			slog.Int("evaluated", rep.Evaluated),
			slog.Int("dispatched", rep.Dispatched),
			slog.Int("trailed", rep.Trailed),
		)
	}
}
