package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/guard"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/store/memory"
	"github.com/alanyoungcy/fxbot/internal/trailing"
)

// wednesday noon UTC, market open.
var wednesday = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu        sync.Mutex
	acct      domain.AccountSnapshot
	acctErr   error
	positions []domain.Position
	closeFail map[int64]bool
	closed    []int64
	orders    []domain.OrderRequest
	candleReq int
	// afterPositions runs once, after the first positions read returns.
	afterPositions func()
}

func (f *fakeGateway) GetAccount(context.Context) (domain.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acct, f.acctErr
}

func (f *fakeGateway) GetOpenPositions(context.Context) ([]domain.Position, error) {
	f.mu.Lock()
	out := append([]domain.Position(nil), f.positions...)
	hook := f.afterPositions
	f.afterPositions = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

// fillAfterRead simulates an in-flight execution on symbol that fills and
// releases its reservation just after the next positions read.
func (h *harness) fillAfterRead(t *testing.T, symbol string) {
	t.Helper()
	res, err := h.exec.Reservations().TryReserve(symbol, "cycle")
	if err != nil {
		t.Fatalf("reserve %s: %v", symbol, err)
	}
	h.gw.afterPositions = func() {
		h.gw.mu.Lock()
		h.gw.positions = append(h.gw.positions, domain.Position{Ticket: 99, Symbol: symbol, Side: domain.SideBuy})
		h.gw.mu.Unlock()
		h.exec.Reservations().Release(res)
	}
}

func (f *fakeGateway) GetSymbolProperties(_ context.Context, symbol string) (domain.SymbolProperties, error) {
	return domain.SymbolProperties{Symbol: symbol, Bid: 1.1000, Ask: 1.1001, Point: 0.00001, Digits: 5}, nil
}

func (f *fakeGateway) GetRecentCandles(context.Context, string, int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleReq++
	return make([]domain.Candle, 60), nil
}

func (f *fakeGateway) Execute(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return domain.OrderResult{Success: true, Retcode: domain.RetcodeDone, Ticket: int64(1000 + len(f.orders))}, nil
}

func (f *fakeGateway) ClosePosition(_ context.Context, p domain.Position) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeFail[p.Ticket] {
		return false, errors.New("trade disabled")
	}
	f.closed = append(f.closed, p.Ticket)
	return true, nil
}

func (f *fakeGateway) ModifyStops(context.Context, int64, float64, float64) (bool, error) {
	return true, nil
}

func (f *fakeGateway) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// scripted returns a fixed decision per symbol and may panic for one.
type scripted struct {
	decisions map[string]domain.SignalDecision
	panicOn   string
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Evaluate(symbol string, _ []domain.Candle, _ domain.Trend) domain.SignalDecision {
	if symbol == s.panicOn {
		panic("indicator overflow")
	}
	d, ok := s.decisions[symbol]
	if !ok {
		return domain.SignalDecision{Symbol: symbol, Signal: domain.SignalNeutral, Reason: "No setup"}
	}
	d.Symbol = symbol
	return d
}

type recNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recNotifier) Notify(_ context.Context, event, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recNotifier) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type harness struct {
	ctrl     *Controller
	gw       *fakeGateway
	exec     *executor.Executor
	journal  domain.Journal
	notifier *recNotifier
	source   *scripted
}

func instruments() []domain.Instrument {
	return []domain.Instrument{
		{Name: "EURUSD", Symbol: "EURUSD", Class: domain.AssetOtherForex},
		{Name: "GBPUSD", Symbol: "GBPUSD", Class: domain.AssetOtherForex},
		{Name: "XAUUSD", Symbol: "XAUUSD", Class: domain.AssetMetal},
	}
}

func newHarness(t *testing.T, capacity risk.CapacityConfig) *harness {
	t.Helper()
	gw := &fakeGateway{acct: domain.AccountSnapshot{Balance: 10000, Equity: 10000, FreeMargin: 9000}}
	policy, err := risk.NewThresholdPolicy(
		map[domain.AssetClass]float64{domain.AssetMetal: 0.87, domain.AssetYenCross: 0.85, domain.AssetOtherForex: 0.85},
		map[domain.AssetClass]float64{domain.AssetMetal: 0.90, domain.AssetYenCross: 0.90, domain.AssetOtherForex: 0.90},
	)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	sizer := risk.NewSizer(map[domain.AssetClass]risk.ClassSizing{
		domain.AssetOtherForex: {RiskFraction: 0.02, StopDistance: 0.0050, ContractMultiplier: 100000, MinLot: 0.30},
		domain.AssetMetal:      {RiskFraction: 0.01, StopDistance: 5.0, ContractMultiplier: 100, MinLot: 0.20},
	}, 2)
	exec := executor.New(gw, sizer, executor.NewReservationSet(), executor.Config{
		Distances: map[domain.AssetClass]executor.Distances{
			domain.AssetOtherForex: {StopLoss: 0.0050, TakeProfit: 0.0100},
			domain.AssetMetal:      {StopLoss: 5.0, TakeProfit: 10.0},
		},
		MinFreeMarginRatio: 0.15,
		MaxAttempts:        5,
		RetryDelay:         time.Millisecond,
		MaxConcurrent:      4,
	}, discard())
	journal := memory.NewJournal()
	exec.SetTradeStore(journal.Trades)
	notifier := &recNotifier{}
	source := &scripted{decisions: map[string]domain.SignalDecision{}}

	h := &harness{gw: gw, exec: exec, journal: journal, notifier: notifier, source: source}
	h.ctrl = NewController(Deps{
		Gateway:  gw,
		Source:   source,
		Executor: exec,
		Kill:     risk.NewKillSwitch(0.04),
		Policy:   policy,
		Capacity: capacity,
		Schedule: guard.DefaultSchedule(),
		Journal:  journal,
		Notifier: notifier,
	}, Config{
		CandleCount:       100,
		MinCandles:        50,
		SpreadCeilings:    map[domain.AssetClass]float64{domain.AssetOtherForex: 30, domain.AssetMetal: 60},
		NewsWindow:        15 * time.Minute,
		HeartbeatInterval: 30 * time.Minute,
		Invalidation:      true,
		InvalidationConf:  0.80,
	}, instruments(), discard())
	h.ctrl.d.Trailing = trailing.NewEngine(gw, trailing.NewTierTable(nil), 10, h.ctrl.classOf, 2, discard())
	h.ctrl.now = func() time.Time { return wednesday }
	return h
}

func defaultCapacity() risk.CapacityConfig {
	return risk.CapacityConfig{BaseSlots: 7, SniperSlots: 5, SymbolCapNormal: 2, SymbolCapSniper: 3}
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.exec.Wait(ctx); err != nil {
		t.Fatalf("executor wait: %v", err)
	}
}

func (h *harness) signals(t *testing.T) []domain.SignalRecord {
	t.Helper()
	recs, err := h.journal.Signals.List(context.Background(), domain.ListOpts{})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	return recs
}

func TestRunCycle_NoAccount(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.gw.acctErr = domain.ErrUnavailable

	rep := h.ctrl.RunCycle(context.Background())
	if rep.Result != ResultNoAccount {
		t.Fatalf("result = %s, want %s", rep.Result, ResultNoAccount)
	}
	snaps, _ := h.journal.Snapshots.List(context.Background(), domain.ListOpts{})
	if len(snaps) != 0 {
		t.Error("snapshot recorded without an account")
	}
}

func TestRunCycle_DispatchesAndPersists(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.85, Reason: "Golden Cross"}

	rep := h.ctrl.RunCycle(context.Background())
	h.wait(t)

	if rep.Result != ResultComplete || rep.Dispatched != 1 || rep.Evaluated != 3 {
		t.Fatalf("report = %+v", rep)
	}
	if h.gw.orderCount() != 1 || h.gw.orders[0].Symbol != "EURUSD" {
		t.Fatalf("orders = %+v", h.gw.orders)
	}
	recs := h.signals(t)
	if len(recs) != 3 {
		t.Fatalf("signal records = %d, want 3 (every decision is persisted)", len(recs))
	}
	var executed int
	for _, r := range recs {
		if r.Outcome == domain.OutcomeExecuted {
			executed++
		}
	}
	if executed != 1 {
		t.Errorf("executed records = %d, want 1", executed)
	}
	snaps, _ := h.journal.Snapshots.List(context.Background(), domain.ListOpts{})
	if len(snaps) != 1 {
		t.Errorf("snapshots = %d, want 1", len(snaps))
	}
	if h.exec.Reservations().Len() != 0 {
		t.Error("reservation leaked")
	}
}

func TestRunCycle_MetalNeedsHigherConfidence(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.source.decisions["XAUUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.86}
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalSell, Confidence: 0.86}

	h.ctrl.RunCycle(context.Background())
	h.wait(t)

	if h.gw.orderCount() != 1 || h.gw.orders[0].Symbol != "EURUSD" {
		t.Fatalf("orders = %+v, want only EURUSD", h.gw.orders)
	}
	for _, r := range h.signals(t) {
		if r.Decision.Symbol == "XAUUSD" && (r.Outcome != domain.OutcomeLowConfidence || r.Required != 0.87) {
			t.Errorf("XAUUSD record = %+v", r)
		}
	}
}

func TestRunCycle_SniperThreshold(t *testing.T) {
	for _, tc := range []struct {
		conf   float64
		orders int
	}{{0.90, 1}, {0.89, 0}} {
		h := newHarness(t, risk.CapacityConfig{BaseSlots: 5, SniperSlots: 2, SymbolCapNormal: 2, SymbolCapSniper: 3})
		for i, sym := range []string{"USDCAD", "USDCHF", "AUDUSD", "NZDUSD", "USDJPY"} {
			h.gw.positions = append(h.gw.positions, domain.Position{Ticket: int64(i + 1), Symbol: sym, Side: domain.SideBuy})
		}
		h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: tc.conf}

		rep := h.ctrl.RunCycle(context.Background())
		h.wait(t)

		if rep.Capacity == nil || rep.Capacity.Open != 5 {
			t.Fatalf("conf %.2f: capacity = %+v", tc.conf, rep.Capacity)
		}
		if got := h.gw.orderCount(); got != tc.orders {
			t.Errorf("conf %.2f: orders = %d, want %d", tc.conf, got, tc.orders)
		}
	}
}

func TestRunCycle_FullModeNoEntries(t *testing.T) {
	h := newHarness(t, risk.CapacityConfig{BaseSlots: 1, SniperSlots: 1, SymbolCapNormal: 2, SymbolCapSniper: 3})
	h.gw.positions = []domain.Position{
		{Ticket: 1, Symbol: "USDCAD", Side: domain.SideBuy},
		{Ticket: 2, Symbol: "USDCHF", Side: domain.SideBuy},
	}
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}

	rep := h.ctrl.RunCycle(context.Background())
	if rep.Result != ResultFull {
		t.Fatalf("result = %s, want %s", rep.Result, ResultFull)
	}
	if h.gw.orderCount() != 0 {
		t.Error("order placed in FULL mode")
	}
}

func TestRunCycle_CapacityNeverExceeded(t *testing.T) {
	h := newHarness(t, risk.CapacityConfig{BaseSlots: 1, SniperSlots: 1, SymbolCapNormal: 2, SymbolCapSniper: 3})
	for _, sym := range []string{"EURUSD", "GBPUSD", "XAUUSD"} {
		h.source.decisions[sym] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}
	}

	rep := h.ctrl.RunCycle(context.Background())
	h.wait(t)

	if rep.Dispatched != 2 || h.gw.orderCount() != 2 {
		t.Errorf("dispatched = %d orders = %d, want 2", rep.Dispatched, h.gw.orderCount())
	}
}

func TestRunCycle_CapacityCountsFillDuringCycle(t *testing.T) {
	h := newHarness(t, risk.CapacityConfig{BaseSlots: 1, SniperSlots: 1, SymbolCapNormal: 2, SymbolCapSniper: 3})
	h.gw.positions = []domain.Position{{Ticket: 1, Symbol: "USDCHF", Side: domain.SideBuy}}
	h.fillAfterRead(t, "USDCAD")
	for _, sym := range []string{"EURUSD", "GBPUSD"} {
		h.source.decisions[sym] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}
	}

	rep := h.ctrl.RunCycle(context.Background())
	h.wait(t)

	if rep.Result != ResultFull {
		t.Fatalf("result = %s, want %s", rep.Result, ResultFull)
	}
	if total := len(h.gw.positions) + h.gw.orderCount(); total > 2 {
		t.Errorf("positions %d + orders %d exceeds limit 2", len(h.gw.positions), h.gw.orderCount())
	}
}

func TestRunCycle_KillSwitch(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.gw.acct = domain.AccountSnapshot{Balance: 10000, Equity: 9580, FreeMargin: 9000}
	h.gw.positions = []domain.Position{
		{Ticket: 1, Symbol: "EURUSD", Side: domain.SideBuy},
		{Ticket: 2, Symbol: "GBPUSD", Side: domain.SideSell},
		{Ticket: 3, Symbol: "XAUUSD", Side: domain.SideBuy},
	}
	h.gw.closeFail = map[int64]bool{2: true}
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}

	rep := h.ctrl.RunCycle(context.Background())
	if rep.Result != ResultTripped {
		t.Fatalf("result = %s, want %s", rep.Result, ResultTripped)
	}
	if len(h.gw.closed) != 2 || rep.Closed != 2 {
		t.Errorf("closed = %v, want tickets 1 and 3", h.gw.closed)
	}
	if h.notifier.count(EventKillSwitch) != 1 {
		t.Error("kill switch alert not sent")
	}

	// Equity recovers; same day stays locked.
	h.gw.acct.Equity = 10100
	rep = h.ctrl.RunCycle(context.Background())
	if rep.Result != ResultLocked {
		t.Fatalf("result after recovery = %s, want %s", rep.Result, ResultLocked)
	}
	if h.gw.orderCount() != 0 || len(h.gw.closed) != 2 {
		t.Error("locked cycle took action")
	}

	// Next UTC day releases the switch.
	h.ctrl.now = func() time.Time { return wednesday.Add(24 * time.Hour) }
	rep = h.ctrl.RunCycle(context.Background())
	h.wait(t)
	if rep.Result != ResultComplete {
		t.Fatalf("result next day = %s, want %s", rep.Result, ResultComplete)
	}
}

func TestRunCycle_MarketClosed(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.ctrl.now = func() time.Time { return time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) }
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}

	rep := h.ctrl.RunCycle(context.Background())
	if rep.Result != ResultClosed {
		t.Fatalf("result = %s, want %s", rep.Result, ResultClosed)
	}
	if h.gw.candleReq != 0 || h.gw.orderCount() != 0 {
		t.Error("symbols evaluated while market closed")
	}
}

func TestRunCycle_SymbolPanicIsolated(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.source.panicOn = "EURUSD"
	h.source.decisions["GBPUSD"] = domain.SignalDecision{Signal: domain.SignalSell, Confidence: 0.95}

	rep := h.ctrl.RunCycle(context.Background())
	h.wait(t)

	if rep.Result != ResultComplete {
		t.Fatalf("result = %s, want %s", rep.Result, ResultComplete)
	}
	if h.gw.orderCount() != 1 || h.gw.orders[0].Symbol != "GBPUSD" {
		t.Errorf("orders = %+v, want GBPUSD after EURUSD panic", h.gw.orders)
	}
}

func TestRunCycle_SkipsOccupiedSymbol(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.gw.positions = []domain.Position{{Ticket: 7, Symbol: "EURUSD", Side: domain.SideBuy}}
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}

	h.ctrl.RunCycle(context.Background())
	h.wait(t)
	if h.gw.orderCount() != 0 {
		t.Error("entered a symbol that already has a position")
	}
}

func TestRunCycle_NewsBlackout(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.ctrl.d.News = staticNews{{Time: wednesday.Add(10 * time.Minute), Country: "EUR", Title: "ECB Rate Decision"}}
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}
	h.source.decisions["XAUUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.99}

	h.ctrl.RunCycle(context.Background())
	h.wait(t)

	if h.gw.orderCount() != 1 || h.gw.orders[0].Symbol != "XAUUSD" {
		t.Errorf("orders = %+v, want only XAUUSD", h.gw.orders)
	}
}

type staticNews []domain.NewsEvent

func (s staticNews) UpcomingHighImpactEvents(context.Context) []domain.NewsEvent { return s }

func TestRunCycle_InvalidatesReversedPosition(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.gw.positions = []domain.Position{{Ticket: 9, Symbol: "GBPUSD", Side: domain.SideBuy, Profit: -12}}
	h.source.decisions["GBPUSD"] = domain.SignalDecision{Signal: domain.SignalSellSMC, Confidence: 0.80}

	rep := h.ctrl.RunCycle(context.Background())
	h.wait(t)

	if rep.Invalidated != 1 || len(h.gw.closed) != 1 || h.gw.closed[0] != 9 {
		t.Fatalf("invalidated = %d closed = %v", rep.Invalidated, h.gw.closed)
	}
	if h.notifier.count(EventInvalidated) != 1 {
		t.Error("invalidation not notified")
	}
}

func TestRunCycle_SameSideKeepsPosition(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.gw.positions = []domain.Position{{Ticket: 9, Symbol: "GBPUSD", Side: domain.SideSell}}
	h.source.decisions["GBPUSD"] = domain.SignalDecision{Signal: domain.SignalSell, Confidence: 0.95}

	rep := h.ctrl.RunCycle(context.Background())
	if rep.Invalidated != 0 || len(h.gw.closed) != 0 {
		t.Errorf("position closed on a same-side signal")
	}
}
