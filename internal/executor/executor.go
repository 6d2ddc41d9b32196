package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/metrics"
	"github.com/alanyoungcy/fxbot/internal/risk"
)

// Gateway is the subset of the market gateway used for execution.
type Gateway interface {
	GetAccount(ctx context.Context) (domain.AccountSnapshot, error)
	GetSymbolProperties(ctx context.Context, symbol string) (domain.SymbolProperties, error)
	Execute(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// Notifier delivers alerts without blocking; delivery errors are its concern.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string)
}

// SnapshotPublisher renders and stores a chart of a fresh trade, returning
// the stored object key.
type SnapshotPublisher interface {
	Publish(ctx context.Context, trade domain.TradeRecord) (string, error)
}

// Distances are the stop-loss and take-profit offsets of one asset class.
type Distances struct {
	StopLoss   float64
	TakeProfit float64
}

// Config holds the execution parameters.
type Config struct {
	Distances          map[domain.AssetClass]Distances
	MinFreeMarginRatio float64
	MaxAttempts        int
	RetryDelay         time.Duration
	MaxConcurrent      int64
	Comment            string
	// SnapshotTimeout bounds the post-fill chart upload.
	SnapshotTimeout time.Duration
}

// Request is one entry to execute.
type Request struct {
	Instrument domain.Instrument
	Side       domain.Side
	Decision   domain.SignalDecision
	// Volume overrides risk sizing when > 0.
	Volume float64
	Source string
}

// Admission bounds a reservation by global capacity. A zero Limit disables it.
// Counted is the reservation snapshot taken before Open was read.
type Admission struct {
	Open    int
	Limit   int
	Counted []string
}

// Outcome describes how an execution ended.
type Outcome struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Filled     bool    `json:"filled"`
	Ticket     int64   `json:"ticket,omitempty"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Attempts   int     `json:"attempts"`
	Retcode    int     `json:"retcode,omitempty"`
	Message    string  `json:"message"`
	Snapshot   string  `json:"snapshot,omitempty"`
	Err        error   `json:"-"`
}

// Events published on the notifier.
const (
	EventTradeExecuted = "trade_executed"
	EventMarginAlert   = "margin_alert"
	EventOrderRejected = "error"
)

// Executor reserves symbols and runs order executions in detached
// goroutines. Every execution releases its reservation on exit.
type Executor struct {
	gw           Gateway
	sizer        *risk.Sizer
	reservations *ReservationSet
	cfg          Config
	logger       *slog.Logger

	trades    domain.TradeStore
	notifier  Notifier
	snapshots SnapshotPublisher
	bus       domain.SignalBus

	sem   *semaphore.Weighted
	wg    sync.WaitGroup
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an Executor. The reservation set is shared with the cycle
// controller, which reads it for capacity.
func New(gw Gateway, sizer *risk.Sizer, reservations *ReservationSet, cfg Config, logger *slog.Logger) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 20 * time.Second
	}
	return &Executor{
		gw:           gw,
		sizer:        sizer,
		reservations: reservations,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "executor")),
		sem:          semaphore.NewWeighted(cfg.MaxConcurrent),
		sleep:        sleepCtx,
		now:          time.Now,
	}
}

// SetTradeStore enables trade persistence.
func (e *Executor) SetTradeStore(s domain.TradeStore) { e.trades = s }

// SetNotifier enables alerts.
func (e *Executor) SetNotifier(n Notifier) { e.notifier = n }

// SetSnapshots enables post-fill chart snapshots.
func (e *Executor) SetSnapshots(p SnapshotPublisher) { e.snapshots = p }

// SetBus enables trade events on the signal bus.
func (e *Executor) SetBus(b domain.SignalBus) { e.bus = b }

// Reservations exposes the shared reservation set.
func (e *Executor) Reservations() *ReservationSet { return e.reservations }

// TryReserveAndExecute reserves the symbol and, if that succeeds, executes
// the request on a detached goroutine. It returns false without side effects
// when the symbol is already reserved or capacity is exhausted.
func (e *Executor) TryReserveAndExecute(ctx context.Context, req Request, adm Admission) bool {
	res, err := e.reservations.TryReserveWithin(req.Instrument.Symbol, req.Source, adm.Open, adm.Limit, adm.Counted...)
	if err != nil {
		e.logger.Debug("reservation refused",
			slog.String("symbol", req.Instrument.Symbol),
			slog.String("reason", err.Error()),
		)
		return false
	}
	metrics.Pending.Set(float64(e.reservations.Len()))

	// Executions outlive the cycle that spawned them.
	detached := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(res)
		defer e.recoverPanic(req)

		if err := e.sem.Acquire(detached, 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		e.execute(detached, req)
	}()
	return true
}

// ExecuteNow reserves the symbol and executes synchronously, holding the
// reservation for the duration of the call.
func (e *Executor) ExecuteNow(ctx context.Context, req Request, adm Admission) (Outcome, error) {
	res, err := e.reservations.TryReserveWithin(req.Instrument.Symbol, req.Source, adm.Open, adm.Limit, adm.Counted...)
	if err != nil {
		return Outcome{Symbol: req.Instrument.Symbol, Message: err.Error(), Err: err}, err
	}
	metrics.Pending.Set(float64(e.reservations.Len()))
	defer e.release(res)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Symbol: req.Instrument.Symbol, Message: err.Error(), Err: err}, err
	}
	defer e.sem.Release(1)

	out := e.execute(ctx, req)
	return out, out.Err
}

// Wait blocks until all detached executions finish or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) release(res Reservation) {
	e.reservations.Release(res)
	metrics.Pending.Set(float64(e.reservations.Len()))
}

func (e *Executor) recoverPanic(req Request) {
	if r := recover(); r != nil {
		e.logger.Error("execution panic",
			slog.String("symbol", req.Instrument.Symbol),
			slog.Any("panic", r),
		)
	}
}

// execute runs one entry end to end: price, stops, margin, size, submit,
// then persistence and alerts.
func (e *Executor) execute(ctx context.Context, req Request) Outcome {
	inst := req.Instrument
	log := e.logger.With(
		slog.String("symbol", inst.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("source", req.Source),
	)
	out := Outcome{Symbol: inst.Symbol, Side: string(req.Side)}

	fail := func(err error, msg string) Outcome {
		out.Err = err
		out.Message = msg
		return out
	}

	dist, ok := e.cfg.Distances[inst.Class]
	if !ok {
		log.Error("no stop distances configured", slog.String("class", string(inst.Class)))
		return fail(domain.ErrUnknownSymbol, "no distances for class "+string(inst.Class))
	}

	props, err := e.gw.GetSymbolProperties(ctx, inst.Symbol)
	if err != nil {
		log.Warn("symbol properties unavailable", slog.String("error", err.Error()))
		return fail(err, "symbol properties unavailable")
	}

	price := props.Ask
	sl, tp := price-dist.StopLoss, price+dist.TakeProfit
	if req.Side == domain.SideSell {
		price = props.Bid
		sl, tp = price+dist.StopLoss, price-dist.TakeProfit
	}
	if price <= 0 {
		return fail(domain.ErrUnavailable, "no live price")
	}
	out.Price = price
	out.StopLoss = risk.NormalizePrice(sl, props.Digits)
	out.TakeProfit = risk.NormalizePrice(tp, props.Digits)

	acct, err := e.gw.GetAccount(ctx)
	if err != nil {
		log.Warn("account unavailable", slog.String("error", err.Error()))
		return fail(err, "account unavailable")
	}
	if !risk.MarginOK(acct, e.cfg.MinFreeMarginRatio) {
		log.Warn("free margin below floor",
			slog.Float64("free_margin", acct.FreeMargin),
			slog.Float64("balance", acct.Balance),
			slog.Float64("ratio", e.cfg.MinFreeMarginRatio),
		)
		e.notify(ctx, EventMarginAlert, "Margin alert",
			fmt.Sprintf("%s %s skipped: free margin %.2f below %.0f%% of balance %.2f",
				req.Side, inst.Name, acct.FreeMargin, e.cfg.MinFreeMarginRatio*100, acct.Balance))
		return fail(domain.ErrInsufficientMargin, "free margin below floor")
	}

	out.Volume = req.Volume
	if out.Volume <= 0 {
		out.Volume = e.sizer.Size(inst.Class, acct.Balance)
	}

	order := domain.OrderRequest{
		Symbol:     inst.Symbol,
		Side:       req.Side,
		Volume:     out.Volume,
		StopLoss:   out.StopLoss,
		TakeProfit: out.TakeProfit,
		Comment:    e.cfg.Comment,
	}

	result, attempts, err := e.submit(ctx, order, log)
	out.Attempts = attempts
	out.Retcode = result.Retcode
	out.Message = result.Message
	if err != nil {
		out.Err = err
		return out
	}

	out.Filled = true
	out.Ticket = result.Ticket
	if result.Price > 0 {
		out.Price = result.Price
	}
	metrics.Orders.WithLabelValues(string(req.Side), "filled").Inc()
	log.Info("order filled",
		slog.Int64("ticket", out.Ticket),
		slog.Float64("volume", out.Volume),
		slog.Float64("price", out.Price),
		slog.Float64("sl", out.StopLoss),
		slog.Float64("tp", out.TakeProfit),
		slog.Int("attempts", attempts),
	)

	trade := domain.TradeRecord{
		Ticket:     out.Ticket,
		Symbol:     inst.Symbol,
		Side:       req.Side,
		Volume:     out.Volume,
		Price:      out.Price,
		StopLoss:   out.StopLoss,
		TakeProfit: out.TakeProfit,
		Confidence: req.Decision.Confidence,
		Reason:     req.Decision.Reason,
		Source:     req.Source,
		Attempts:   attempts,
		OpenedAt:   e.now().UTC(),
	}
	e.record(ctx, trade, log)

	msg := fmt.Sprintf("%s %s %.2f lots @ %.5f SL %.5f TP %.5f (%s, %.0f%%)",
		req.Side, inst.Name, out.Volume, out.Price, out.StopLoss, out.TakeProfit,
		req.Decision.Reason, req.Decision.Confidence*100)
	e.notify(ctx, EventTradeExecuted, "Trade executed", msg)

	if e.snapshots != nil {
		out.Snapshot = e.snapshot(ctx, trade, log)
		if out.Snapshot != "" {
			e.notify(ctx, EventTradeExecuted, "Trade snapshot",
				fmt.Sprintf("%s #%d snapshot: %s", inst.Name, trade.Ticket, out.Snapshot))
		}
	}
	return out
}

// snapshot publishes the post-fill chart. Failures and panics only log; the
// trade is already recorded and alerted.
func (e *Executor) snapshot(ctx context.Context, trade domain.TradeRecord, log *slog.Logger) (key string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("snapshot panic", slog.Any("panic", r))
			key = ""
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SnapshotTimeout)
	defer cancel()

	key, err := e.snapshots.Publish(ctx, trade)
	if err != nil {
		log.Warn("snapshot failed", slog.String("error", err.Error()))
		return ""
	}
	return key
}

// submit sends the order, retrying transient failures with a fixed delay up
// to MaxAttempts. Final broker rejections stop immediately.
func (e *Executor) submit(ctx context.Context, order domain.OrderRequest, log *slog.Logger) (domain.OrderResult, int, error) {
	var last domain.OrderResult
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		metrics.OrderAttempts.Inc()
		result, err := e.gw.Execute(ctx, order)
		switch {
		case err != nil:
			last = domain.OrderResult{Message: err.Error()}
			log.Warn("order submission failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		case result.Success:
			return result, attempt, nil
		case result.Final():
			log.Warn("order rejected",
				slog.Int("attempt", attempt),
				slog.Int("retcode", result.Retcode),
				slog.String("message", result.Message),
			)
			metrics.Orders.WithLabelValues(string(order.Side), "rejected").Inc()
			e.notify(ctx, EventOrderRejected, "Order rejected",
				fmt.Sprintf("%s %s rejected: %s (%d)", order.Side, order.Symbol, result.Message, result.Retcode))
			return result, attempt, rejection(result)
		default:
			last = result
			log.Warn("order transient failure",
				slog.Int("attempt", attempt),
				slog.Int("retcode", result.Retcode),
				slog.String("message", result.Message),
			)
		}

		if attempt < e.cfg.MaxAttempts {
			if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
				return last, attempt, err
			}
		}
	}

	metrics.Orders.WithLabelValues(string(order.Side), "exhausted").Inc()
	log.Error("order retries exhausted", slog.Int("attempts", e.cfg.MaxAttempts))
	return last, e.cfg.MaxAttempts, fmt.Errorf("executor: %d attempts exhausted: %s: %w", e.cfg.MaxAttempts, last.Message, domain.ErrUnavailable)
}

func rejection(r domain.OrderResult) error {
	switch r.Retcode {
	case domain.RetcodeMarketClosed:
		return fmt.Errorf("executor: %s: %w", r.Message, domain.ErrMarketClosed)
	case domain.RetcodeNoMoney:
		return fmt.Errorf("executor: %s: %w", r.Message, domain.ErrInsufficientMargin)
	default:
		return fmt.Errorf("executor: retcode %d %s: %w", r.Retcode, r.Message, domain.ErrInvalidOrder)
	}
}

func (e *Executor) record(ctx context.Context, trade domain.TradeRecord, log *slog.Logger) {
	if e.trades != nil {
		if err := e.trades.Save(ctx, trade); err != nil {
			log.Warn("trade persistence failed", slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		payload, err := json.Marshal(trade)
		if err == nil {
			err = e.bus.Publish(ctx, domain.ChannelTrades, payload)
		}
		if err != nil {
			log.Debug("trade event publish failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Executor) notify(ctx context.Context, event, title, msg string) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, event, title, msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// IsRejection reports whether err is a semantic broker rejection.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrMarketClosed) ||
		errors.Is(err, domain.ErrInvalidOrder) ||
		errors.Is(err, domain.ErrInsufficientMargin)
}
