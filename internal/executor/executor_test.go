package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/risk"
)

type fakeGateway struct {
	mu       sync.Mutex
	acct     domain.AccountSnapshot
	acctErr  error
	props    domain.SymbolProperties
	results  []domain.OrderResult
	errs     []error
	orders   []domain.OrderRequest
	onSubmit func(n int)
	panicOn  bool
}

func (f *fakeGateway) GetAccount(context.Context) (domain.AccountSnapshot, error) {
	return f.acct, f.acctErr
}

func (f *fakeGateway) GetSymbolProperties(context.Context, string) (domain.SymbolProperties, error) {
	if f.panicOn {
		panic("boom")
	}
	return f.props, nil
}

func (f *fakeGateway) Execute(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.orders)
	f.orders = append(f.orders, req)
	if f.onSubmit != nil {
		f.onSubmit(n + 1)
	}
	var err error
	if n < len(f.errs) {
		err = f.errs[n]
	}
	if err != nil {
		return domain.OrderResult{}, err
	}
	if n < len(f.results) {
		return f.results[n], nil
	}
	return domain.OrderResult{Success: true, Retcode: domain.RetcodeDone, Ticket: 100 + int64(n)}, nil
}

func (f *fakeGateway) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type memTrades struct {
	mu    sync.Mutex
	saved []domain.TradeRecord
}

func (m *memTrades) Save(_ context.Context, t domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, t)
	return nil
}

func (m *memTrades) List(context.Context, domain.ListOpts) ([]domain.TradeRecord, error) {
	return nil, nil
}

type recNotifier struct {
	mu     sync.Mutex
	events []string
	titles []string
}

func (r *recNotifier) Notify(_ context.Context, event, title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.titles = append(r.titles, title)
}

func (r *recNotifier) titleList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func (r *recNotifier) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var eurusd = domain.Instrument{Name: "EURUSD", Symbol: "EURUSD", Class: domain.AssetOtherForex}

func newTestExecutor(gw *fakeGateway) (*Executor, *memTrades, *recNotifier) {
	sizer := risk.NewSizer(map[domain.AssetClass]risk.ClassSizing{
		domain.AssetOtherForex: {RiskFraction: 0.01, StopDistance: 0.0020, ContractMultiplier: 100000, MinLot: 0.01},
	}, 2)
	cfg := Config{
		Distances: map[domain.AssetClass]Distances{
			domain.AssetOtherForex: {StopLoss: 0.0020, TakeProfit: 0.0040},
		},
		MinFreeMarginRatio: 0.15,
		MaxAttempts:        5,
		RetryDelay:         2 * time.Second,
		MaxConcurrent:      4,
		Comment:            "fxbot",
	}
	e := New(gw, sizer, NewReservationSet(), cfg, discard())
	e.sleep = func(context.Context, time.Duration) error { return nil }
	trades := &memTrades{}
	n := &recNotifier{}
	e.SetTradeStore(trades)
	e.SetNotifier(n)
	return e, trades, n
}

func healthyGateway() *fakeGateway {
	return &fakeGateway{
		acct:  domain.AccountSnapshot{Balance: 10000, Equity: 10000, FreeMargin: 9000},
		props: domain.SymbolProperties{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Point: 0.00001, Digits: 5},
	}
}

func buy() Request {
	return Request{
		Instrument: eurusd,
		Side:       domain.SideBuy,
		Decision:   domain.SignalDecision{Symbol: "EURUSD", Signal: domain.SignalBuy, Confidence: 0.9, Reason: "Golden Cross"},
		Source:     "cycle",
	}
}

func TestExecuteNow_TransientRetriesThenFill(t *testing.T) {
	gw := healthyGateway()
	gw.errs = []error{errors.New("dial tcp: timeout")}
	gw.results = []domain.OrderResult{
		{},
		{Retcode: domain.RetcodeRequote, Message: "requote"},
		{Retcode: domain.RetcodeOffQuotes, Message: "off quotes"},
		{Success: true, Retcode: domain.RetcodeDone, Ticket: 555, Price: 1.1003},
	}
	var delays []time.Duration
	e, trades, n := newTestExecutor(gw)
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	// Reservation is still held while the final attempt is in flight.
	gw.onSubmit = func(int) {
		if !e.Reservations().Held("EURUSD") {
			t.Error("reservation released before execution finished")
		}
	}

	out, err := e.ExecuteNow(context.Background(), buy(), Admission{})
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	if !out.Filled || out.Ticket != 555 || out.Attempts != 4 {
		t.Errorf("outcome = %+v, want filled ticket 555 after 4 attempts", out)
	}
	if len(delays) != 3 {
		t.Errorf("retry sleeps = %d, want 3", len(delays))
	}
	for _, d := range delays {
		if d != 2*time.Second {
			t.Errorf("delay = %v, want fixed 2s", d)
		}
	}
	if len(trades.saved) != 1 {
		t.Errorf("trades saved = %d, want 1", len(trades.saved))
	}
	if e.Reservations().Held("EURUSD") {
		t.Error("reservation not released after execution")
	}
	if !n.has(EventTradeExecuted) {
		t.Error("trade_executed not notified")
	}
}

func TestExecuteNow_StopsAndSizing(t *testing.T) {
	gw := healthyGateway()
	e, _, _ := newTestExecutor(gw)
	out, err := e.ExecuteNow(context.Background(), buy(), Admission{})
	if err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	// 10000 * 0.01 / (0.0020 * 100000) = 0.5 lots
	if out.Volume != 0.5 {
		t.Errorf("volume = %v, want 0.5", out.Volume)
	}
	order := gw.orders[0]
	if order.StopLoss != 1.0982 || order.TakeProfit != 1.1042 {
		t.Errorf("stops = %v/%v, want 1.0982/1.1042", order.StopLoss, order.TakeProfit)
	}
}

func TestExecuteNow_SellUsesBid(t *testing.T) {
	gw := healthyGateway()
	e, _, _ := newTestExecutor(gw)
	req := buy()
	req.Side = domain.SideSell
	req.Volume = 0.07
	if _, err := e.ExecuteNow(context.Background(), req, Admission{}); err != nil {
		t.Fatalf("ExecuteNow: %v", err)
	}
	order := gw.orders[0]
	if order.Volume != 0.07 {
		t.Errorf("volume = %v, want manual 0.07", order.Volume)
	}
	if order.StopLoss != 1.1020 || order.TakeProfit != 1.0960 {
		t.Errorf("stops = %v/%v, want 1.1020/1.0960", order.StopLoss, order.TakeProfit)
	}
}

func TestExecuteNow_FinalRejectionNoRetry(t *testing.T) {
	gw := healthyGateway()
	gw.results = []domain.OrderResult{{Retcode: domain.RetcodeMarketClosed, Message: "market closed"}}
	e, trades, n := newTestExecutor(gw)

	_, err := e.ExecuteNow(context.Background(), buy(), Admission{})
	if !errors.Is(err, domain.ErrMarketClosed) {
		t.Fatalf("err = %v, want ErrMarketClosed", err)
	}
	if !IsRejection(err) {
		t.Error("IsRejection = false")
	}
	if gw.submitted() != 1 {
		t.Errorf("submissions = %d, want 1", gw.submitted())
	}
	if len(trades.saved) != 0 {
		t.Error("rejected order was persisted")
	}
	if e.Reservations().Len() != 0 {
		t.Error("reservation leaked after rejection")
	}
	if !n.has(EventOrderRejected) {
		t.Error("rejection not notified")
	}
}

func TestExecuteNow_Exhausted(t *testing.T) {
	gw := healthyGateway()
	gw.results = []domain.OrderResult{
		{Retcode: domain.RetcodeTimeout}, {Retcode: domain.RetcodeTimeout}, {Retcode: domain.RetcodeTimeout},
		{Retcode: domain.RetcodeTimeout}, {Retcode: domain.RetcodeTimeout}, {Success: true, Ticket: 9},
	}
	e, _, _ := newTestExecutor(gw)
	out, err := e.ExecuteNow(context.Background(), buy(), Admission{})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if gw.submitted() != 5 || out.Attempts != 5 {
		t.Errorf("submissions = %d attempts = %d, want 5", gw.submitted(), out.Attempts)
	}
}

func TestExecuteNow_MarginFloorAborts(t *testing.T) {
	gw := healthyGateway()
	gw.acct.FreeMargin = 1499
	e, _, n := newTestExecutor(gw)

	_, err := e.ExecuteNow(context.Background(), buy(), Admission{})
	if !errors.Is(err, domain.ErrInsufficientMargin) {
		t.Fatalf("err = %v, want ErrInsufficientMargin", err)
	}
	if gw.submitted() != 0 {
		t.Error("order submitted below margin floor")
	}
	if !n.has(EventMarginAlert) {
		t.Error("margin alert not sent")
	}
}

func TestExecuteNow_AccountUnavailableAborts(t *testing.T) {
	gw := healthyGateway()
	gw.acctErr = domain.ErrUnavailable
	e, _, _ := newTestExecutor(gw)
	if _, err := e.ExecuteNow(context.Background(), buy(), Admission{}); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if gw.submitted() != 0 {
		t.Error("order submitted without account data")
	}
}

func TestTryReserveAndExecute_AsyncReleases(t *testing.T) {
	gw := healthyGateway()
	e, trades, _ := newTestExecutor(gw)

	if !e.TryReserveAndExecute(context.Background(), buy(), Admission{}) {
		t.Fatal("first dispatch refused")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if e.Reservations().Len() != 0 {
		t.Error("reservation not released")
	}
	if len(trades.saved) != 1 {
		t.Errorf("trades saved = %d, want 1", len(trades.saved))
	}
}

func TestTryReserveAndExecute_RefusesHeldSymbol(t *testing.T) {
	gw := healthyGateway()
	e, _, _ := newTestExecutor(gw)
	held, _ := e.Reservations().TryReserve("EURUSD", "manual")
	if e.TryReserveAndExecute(context.Background(), buy(), Admission{}) {
		t.Fatal("dispatch succeeded on held symbol")
	}
	e.Reservations().Release(held)
	if gw.submitted() != 0 {
		t.Error("order submitted for held symbol")
	}
}

func TestTryReserveAndExecute_RefusesAtCapacity(t *testing.T) {
	gw := healthyGateway()
	e, _, _ := newTestExecutor(gw)
	if e.TryReserveAndExecute(context.Background(), buy(), Admission{Open: 12, Limit: 12}) {
		t.Fatal("dispatch succeeded at capacity")
	}
}

func TestTryReserveAndExecute_PanicReleases(t *testing.T) {
	gw := healthyGateway()
	gw.panicOn = true
	e, _, _ := newTestExecutor(gw)

	if !e.TryReserveAndExecute(context.Background(), buy(), Admission{}) {
		t.Fatal("dispatch refused")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if e.Reservations().Held("EURUSD") {
		t.Error("reservation leaked after panic")
	}
}

func TestTryReserveAndExecute_SurvivesCallerCancel(t *testing.T) {
	gw := healthyGateway()
	e, trades, _ := newTestExecutor(gw)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if !e.TryReserveAndExecute(ctx, buy(), Admission{}) {
		t.Fatal("dispatch refused")
	}
	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer wcancel()
	if err := e.Wait(wctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(trades.saved) != 1 {
		t.Errorf("trades saved = %d, want 1 despite cancelled cycle", len(trades.saved))
	}
}

// stubSnapshots panics, blocks until its deadline, or returns a key.
type stubSnapshots struct {
	mode        string
	hadDeadline bool
}

func (s *stubSnapshots) Publish(ctx context.Context, t domain.TradeRecord) (string, error) {
	switch s.mode {
	case "panic":
		panic("svg encoder")
	case "hang":
		_, s.hadDeadline = ctx.Deadline()
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "snapshots/EURUSD/555.svg", nil
}

func TestTryReserveAndExecute_SnapshotAfterAlert(t *testing.T) {
	tests := []struct {
		mode   string
		titles []string
	}{
		{"panic", []string{"Trade executed"}},
		{"hang", []string{"Trade executed"}},
		{"ok", []string{"Trade executed", "Trade snapshot"}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			gw := healthyGateway()
			gw.results = []domain.OrderResult{{Success: true, Retcode: domain.RetcodeDone, Ticket: 555}}
			e, trades, n := newTestExecutor(gw)
			e.cfg.SnapshotTimeout = 20 * time.Millisecond
			snaps := &stubSnapshots{mode: tt.mode}
			e.SetSnapshots(snaps)

			if !e.TryReserveAndExecute(context.Background(), buy(), Admission{}) {
				t.Fatal("dispatch refused")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := e.Wait(ctx); err != nil {
				t.Fatalf("Wait: %v", err)
			}

			if len(trades.saved) != 1 {
				t.Errorf("trades saved = %d, want 1", len(trades.saved))
			}
			got := n.titleList()
			if len(got) != len(tt.titles) {
				t.Fatalf("alerts = %v, want %v", got, tt.titles)
			}
			for i := range got {
				if got[i] != tt.titles[i] {
					t.Errorf("alert %d = %q, want %q", i, got[i], tt.titles[i])
				}
			}
			if tt.mode == "hang" && !snaps.hadDeadline {
				t.Error("snapshot ran without a deadline")
			}
			if e.Reservations().Held("EURUSD") {
				t.Error("reservation leaked")
			}
		})
	}
}
