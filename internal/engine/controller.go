// Package engine runs the periodic trading cycle: account and kill-switch
// checks, trailing stops, capacity, then per-symbol entry evaluation.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/guard"
	"github.com/alanyoungcy/fxbot/internal/metrics"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/strategy"
	"github.com/alanyoungcy/fxbot/internal/trailing"
)

const cycleLockKey = "fxbot:cycle"

// Cycle results, also used as the metrics label.
const (
	ResultComplete  = "complete"
	ResultNoAccount = "no_account"
	ResultLocked    = "locked"
	ResultTripped   = "tripped"
	ResultClosed    = "closed"
	ResultFull      = "full"
	ResultBusy      = "busy"
	ResultNoData    = "no_positions"
)

// Events sent to the notifier by the controller.
const (
	EventKillSwitch  = "kill_switch"
	EventInvalidated = "position_invalidated"
)

// Config holds the controller parameters.
type Config struct {
	CandleCount       int
	MinCandles        int
	SpreadCeilings    map[domain.AssetClass]float64
	NewsWindow        time.Duration
	TrailWhenClosed   bool
	HeartbeatInterval time.Duration
	CycleLockTTL      time.Duration
	Invalidation      bool
	InvalidationConf  float64
}

// Deps are the collaborators of a Controller. Optional ones may be nil.
type Deps struct {
	Gateway  domain.MarketGateway
	Source   strategy.SignalSource
	Trend    strategy.TrendSource
	Executor *executor.Executor
	Trailing *trailing.Engine
	Kill     *risk.KillSwitch
	Policy   risk.ThresholdPolicy
	Capacity risk.CapacityConfig
	Schedule guard.MarketSchedule
	News     domain.NewsFeed
	Journal  domain.Journal
	Lock     domain.LockManager
	Bus      domain.SignalBus
	Notifier executor.Notifier
}

// Report summarises one cycle.
type Report struct {
	Started     time.Time              `json:"started"`
	Result      string                 `json:"result"`
	Drawdown    float64                `json:"drawdown"`
	Capacity    *risk.CapacitySnapshot `json:"capacity,omitempty"`
	Evaluated   int                    `json:"evaluated"`
	Dispatched  int                    `json:"dispatched"`
	Trailed     int                    `json:"trailed"`
	Invalidated int                    `json:"invalidated"`
	Closed      int                    `json:"closed,omitempty"`
}

// Controller owns the daily risk state and drives one cycle at a time.
type Controller struct {
	d      Deps
	cfg    Config
	logger *slog.Logger

	cycleMu sync.Mutex

	mu            sync.RWMutex
	instruments   []domain.Instrument
	bySymbol      map[string]domain.Instrument
	lastHeartbeat time.Time
	last          Report

	now func() time.Time
}

// NewController creates a Controller for the given instruments. Symbols must
// already be broker symbols.
func NewController(d Deps, cfg Config, instruments []domain.Instrument, logger *slog.Logger) *Controller {
	if d.Trend == nil {
		d.Trend = strategy.NewStaticTrend(nil)
	}
	c := &Controller{
		d:      d,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "engine")),
		now:    time.Now,
	}
	c.SetInstruments(instruments)
	return c
}

// SetInstruments replaces the monitored set.
func (c *Controller) SetInstruments(list []domain.Instrument) {
	by := make(map[string]domain.Instrument, len(list))
	for _, inst := range list {
		by[inst.Symbol] = inst
	}
	c.mu.Lock()
	c.instruments = append([]domain.Instrument(nil), list...)
	c.bySymbol = by
	c.mu.Unlock()
}

// Instruments returns the monitored set.
func (c *Controller) Instruments() []domain.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Instrument(nil), c.instruments...)
}

// Instrument looks up a monitored instrument by broker symbol or name.
func (c *Controller) Instrument(symbol string) (domain.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if inst, ok := c.bySymbol[symbol]; ok {
		return inst, true
	}
	for _, inst := range c.instruments {
		if inst.Name == symbol {
			return inst, true
		}
	}
	return domain.Instrument{}, false
}

func (c *Controller) classOf(symbol string) (domain.AssetClass, bool) {
	inst, ok := c.Instrument(symbol)
	return inst.Class, ok
}

// LastReport returns the most recent cycle report.
func (c *Controller) LastReport() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// RunCycle executes one pass. It never returns an error and never panics:
// collaborator failures end the affected step or symbol only.
func (c *Controller) RunCycle(ctx context.Context) (rep Report) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	rep = Report{Started: c.now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cycle panic", slog.Any("panic", r))
			rep.Result = "panic"
		}
		metrics.Cycles.WithLabelValues(rep.Result).Inc()
		c.mu.Lock()
		c.last = rep
		c.mu.Unlock()
		c.publish(ctx, domain.ChannelCycle, rep)
	}()

	if c.d.Lock != nil {
		unlock, err := c.d.Lock.Acquire(ctx, cycleLockKey, c.cfg.CycleLockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			c.logger.Debug("cycle lock held elsewhere")
			rep.Result = ResultBusy
			return rep
		case err != nil:
			c.logger.Warn("cycle lock unavailable, continuing", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	rep.Result = c.run(ctx, &rep)
	return rep
}

func (c *Controller) run(ctx context.Context, rep *Report) string {
	now := c.now()

	acct, err := c.d.Gateway.GetAccount(ctx)
	if err != nil {
		c.logger.Warn("account unavailable, skipping cycle", slog.String("error", err.Error()))
		return ResultNoAccount
	}

	c.step("snapshot", func() {
		if c.d.Journal.Snapshots == nil {
			return
		}
		snap := acct
		if snap.TakenAt.IsZero() {
			snap.TakenAt = now.UTC()
		}
		if err := c.d.Journal.Snapshots.Record(ctx, snap); err != nil {
			c.logger.Warn("account snapshot not persisted", slog.String("error", err.Error()))
		}
	})

	v := c.d.Kill.Observe(now, acct)
	rep.Drawdown = v.Drawdown
	metrics.SetAccount(acct.Balance, acct.Equity, v.Drawdown)
	if v.Rollover {
		state := c.d.Kill.State()
		c.logger.Info("new trading day",
			slog.Time("day", state.Day),
			slog.Float64("start_balance", state.StartBalance),
		)
		metrics.SetKillSwitch(false)
	}

	if v.Locked {
		c.heartbeat(now)
		return ResultLocked
	}
	if v.Tripped {
		rep.Closed = c.tripKillSwitch(ctx, acct, v.Drawdown)
		return ResultTripped
	}

	if open, reason := c.d.Schedule.Open(now); !open {
		c.logger.Debug("market closed", slog.String("reason", reason))
		if c.cfg.TrailWhenClosed {
			if positions, err := c.d.Gateway.GetOpenPositions(ctx); err == nil {
				c.step("trailing", func() { rep.Trailed = c.d.Trailing.Apply(ctx, positions) })
			}
		}
		return ResultClosed
	}

	// Reservations are read before positions so a fill that lands in
	// between is counted twice rather than not at all.
	reserved := c.d.Executor.Reservations().Symbols()
	positions, err := c.d.Gateway.GetOpenPositions(ctx)
	if err != nil {
		c.logger.Warn("open positions unavailable", slog.String("error", err.Error()))
		return ResultNoData
	}

	c.step("trailing", func() { rep.Trailed = c.d.Trailing.Apply(ctx, positions) })

	if c.cfg.Invalidation {
		c.step("invalidation", func() {
			positions, rep.Invalidated = c.invalidate(ctx, positions)
		})
	}

	state := risk.ComputeCapacity(c.d.Capacity, positions, reserved, c.classOf)
	metrics.Occupied.Set(float64(state.Occupied()))
	defer func() {
		snap := state.Snapshot()
		rep.Capacity = &snap
	}()
	if state.Mode() == risk.ModeFull {
		c.logger.Info("capacity full, no new entries",
			slog.Int("occupied", state.Occupied()),
			slog.Int("limit", c.d.Capacity.Limit()),
		)
		return ResultFull
	}

	var events []domain.NewsEvent
	if c.d.News != nil {
		c.step("news", func() { events = c.d.News.UpcomingHighImpactEvents(ctx) })
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	for _, sym := range reserved {
		held[sym] = true
	}

	for _, inst := range c.Instruments() {
		if state.Mode() == risk.ModeFull {
			break
		}
		inst := inst
		c.step("evaluate "+inst.Symbol, func() {
			evaluated, dispatched := c.evaluate(ctx, inst, state, held, reserved, events, now)
			if evaluated {
				rep.Evaluated++
			}
			if dispatched {
				rep.Dispatched++
			}
		})
	}
	return ResultComplete
}

// step runs fn and contains any panic to it.
func (c *Controller) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cycle step panic", slog.String("step", name), slog.Any("panic", r))
		}
	}()
	fn()
}

func (c *Controller) heartbeat(now time.Time) {
	c.mu.Lock()
	due := now.Sub(c.lastHeartbeat) >= c.cfg.HeartbeatInterval
	if due {
		c.lastHeartbeat = now
	}
	c.mu.Unlock()
	if due {
		state := c.d.Kill.State()
		c.logger.Info("kill switch active, trading halted until next UTC day",
			slog.Time("tripped_at", state.TrippedAt),
			slog.Float64("start_balance", state.StartBalance),
		)
	}
}

// tripKillSwitch liquidates every open position. Close failures are logged
// per position and do not stop the others.
func (c *Controller) tripKillSwitch(ctx context.Context, acct domain.AccountSnapshot, drawdown float64) int {
	metrics.KillSwitchTrips.Inc()
	metrics.SetKillSwitch(true)
	c.logger.Error("kill switch tripped",
		slog.Float64("drawdown", drawdown),
		slog.Float64("equity", acct.Equity),
		slog.Float64("start_balance", c.d.Kill.State().StartBalance),
	)

	closed := 0
	positions, err := c.d.Gateway.GetOpenPositions(ctx)
	if err != nil {
		c.logger.Error("kill switch: open positions unavailable", slog.String("error", err.Error()))
	}
	for _, p := range positions {
		c.step("close "+p.Symbol, func() {
			ok, err := c.d.Gateway.ClosePosition(ctx, p)
			if err != nil || !ok {
				msg := "rejected"
				if err != nil {
					msg = err.Error()
				}
				c.logger.Error("kill switch: close failed",
					slog.Int64("ticket", p.Ticket),
					slog.String("symbol", p.Symbol),
					slog.String("error", msg),
				)
				return
			}
			closed++
		})
	}

	msg := fmt.Sprintf("Daily drawdown %.2f%% reached. Closed %d/%d positions. Trading halted until the next UTC day.",
		drawdown*100, closed, len(positions))
	if c.d.Notifier != nil {
		c.d.Notifier.Notify(ctx, EventKillSwitch, "Kill switch", msg)
	}
	c.audit(ctx, EventKillSwitch, map[string]any{
		"drawdown":  drawdown,
		"equity":    acct.Equity,
		"closed":    closed,
		"positions": len(positions),
	})
	c.publish(ctx, domain.ChannelRisk, map[string]any{
		"event":    EventKillSwitch,
		"drawdown": drawdown,
		"closed":   closed,
	})
	return closed
}

// evaluate runs entry evaluation for one instrument. It reports whether the
// signal source was consulted and whether an execution was dispatched.
func (c *Controller) evaluate(ctx context.Context, inst domain.Instrument, state *risk.CapacityState,
	held map[string]bool, reserved []string, events []domain.NewsEvent, now time.Time) (bool, bool) {
	log := c.logger.With(slog.String("symbol", inst.Symbol))

	if ev, blocked := guard.NewsBlackout(events, inst, now, c.cfg.NewsWindow); blocked {
		log.Info("news blackout", slog.String("event", ev.Title), slog.Time("at", ev.Time))
		return false, false
	}

	if held[inst.Symbol] || c.d.Executor.Reservations().Held(inst.Symbol) {
		return false, false
	}
	if ok, reason := state.Admit(inst.Symbol, inst.Class); !ok {
		log.Debug("capacity refused", slog.String("reason", reason))
		return false, false
	}

	props, err := c.d.Gateway.GetSymbolProperties(ctx, inst.Symbol)
	if err != nil {
		log.Warn("symbol properties unavailable", slog.String("error", err.Error()))
		return false, false
	}
	if spread, ok := guard.SpreadOK(props, c.cfg.SpreadCeilings[inst.Class]); !ok {
		log.Info("spread too wide", slog.Float64("spread_points", spread))
		return false, false
	}

	candles, err := c.d.Gateway.GetRecentCandles(ctx, inst.Symbol, c.cfg.CandleCount)
	if err != nil || len(candles) < c.cfg.MinCandles {
		log.Debug("insufficient history", slog.Int("candles", len(candles)))
		return false, false
	}

	decision := c.d.Source.Evaluate(inst.Symbol, candles, c.d.Trend.Trend(inst.Symbol))
	decision.At = now.UTC()
	mode := state.Mode()
	required := c.d.Policy.Required(mode, inst.Class)

	outcome := domain.OutcomeNeutral
	dispatched := false
	side, directional := decision.Signal.Side()
	switch {
	case !directional:
	case decision.Confidence < required:
		outcome = domain.OutcomeLowConfidence
		log.Info("low confidence",
			slog.String("signal", string(decision.Signal)),
			slog.Float64("confidence", decision.Confidence),
			slog.Float64("required", required),
			slog.String("mode", string(mode)),
		)
	default:
		req := executor.Request{Instrument: inst, Side: side, Decision: decision, Source: "cycle"}
		adm := executor.Admission{Open: state.Open(), Limit: c.d.Capacity.Limit(), Counted: reserved}
		if c.d.Executor.TryReserveAndExecute(ctx, req, adm) {
			state.Reserve(inst.Symbol, inst.Class)
			outcome = domain.OutcomeExecuted
			dispatched = true
			log.Info("entry dispatched",
				slog.String("signal", string(decision.Signal)),
				slog.Float64("confidence", decision.Confidence),
				slog.String("reason", decision.Reason),
				slog.String("mode", string(mode)),
			)
		} else if c.d.Executor.Reservations().Held(inst.Symbol) {
			outcome = domain.OutcomeReservedBusy
		} else {
			outcome = domain.OutcomeCapacity
		}
	}

	c.recordSignal(ctx, domain.SignalRecord{
		Decision: decision,
		Mode:     string(mode),
		Required: required,
		Outcome:  outcome,
	})
	return true, dispatched
}

func (c *Controller) recordSignal(ctx context.Context, rec domain.SignalRecord) {
	metrics.Signals.WithLabelValues(string(rec.Decision.Signal), string(rec.Outcome)).Inc()
	if c.d.Journal.Signals != nil {
		if err := c.d.Journal.Signals.Log(ctx, rec); err != nil {
			c.logger.Warn("signal not persisted",
				slog.String("symbol", rec.Decision.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	c.publish(ctx, domain.ChannelSignals, rec)
}

func (c *Controller) audit(ctx context.Context, event string, detail map[string]any) {
	if c.d.Journal.Audit == nil {
		return
	}
	if err := c.d.Journal.Audit.Log(ctx, event, detail); err != nil {
		c.logger.Warn("audit not persisted", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (c *Controller) publish(ctx context.Context, channel string, v any) {
	if c.d.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.d.Bus.Publish(ctx, channel, payload); err != nil {
		c.logger.Debug("bus publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}
