package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/risk"
)

func TestManualTrade(t *testing.T) {
	tests := []struct {
		name  string
		order ManualOrder
		setup func(t *testing.T, h *harness)
		want  error
	}{
		{"unknown symbol", ManualOrder{Symbol: "EURGBP", Side: domain.SideBuy}, nil, domain.ErrUnknownSymbol},
		{"bad side", ManualOrder{Symbol: "EURUSD", Side: "HOLD"}, nil, domain.ErrInvalidOrder},
		{"kill switch", ManualOrder{Symbol: "EURUSD", Side: domain.SideBuy}, func(t *testing.T, h *harness) {
			h.gw.acct.Equity = 9000
			h.ctrl.RunCycle(context.Background())
		}, domain.ErrKillSwitch},
		{"symbol cap", ManualOrder{Symbol: "EURUSD", Side: domain.SideBuy}, func(t *testing.T, h *harness) {
			h.gw.positions = []domain.Position{{Ticket: 1, Symbol: "EURUSD"}, {Ticket: 2, Symbol: "EURUSD"}}
		}, domain.ErrCapacityFull},
		{"fill lands after positions read", ManualOrder{Symbol: "EURUSD", Side: domain.SideBuy}, func(t *testing.T, h *harness) {
			h.ctrl.d.Capacity = risk.CapacityConfig{BaseSlots: 1, SniperSlots: 1, SymbolCapNormal: 2, SymbolCapSniper: 3}
			h.gw.positions = []domain.Position{{Ticket: 1, Symbol: "USDCHF"}}
			h.fillAfterRead(t, "USDCAD")
		}, domain.ErrCapacityFull},
		{"filled", ManualOrder{Symbol: "eurusd", Side: "sell", Lot: 0.05}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, defaultCapacity())
			if tt.setup != nil {
				tt.setup(t, h)
			}
			out, err := h.ctrl.ManualTrade(context.Background(), tt.order)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("err = %v, want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("ManualTrade: %v", err)
			}
			if !out.Filled || out.Volume != 0.05 || h.gw.orders[0].Side != domain.SideSell {
				t.Errorf("outcome = %+v", out)
			}
			if h.exec.Reservations().Len() != 0 {
				t.Error("reservation held after synchronous execution")
			}
			audit, _ := h.journal.Audit.List(context.Background(), domain.ListOpts{})
			if len(audit) != 1 || audit[0].Event != "manual_trade" {
				t.Errorf("audit = %+v", audit)
			}
		})
	}
}

type mapResolver map[string]string

func (m mapResolver) ResolveSymbol(_ context.Context, name string) (string, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return "", domain.ErrUnknownSymbol
}

func TestRunner_StartResolvesSymbols(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	r := NewRunner(h.ctrl, mapResolver{"EURUSD": "EURUSD.m", "XAUUSD": "GOLD"}, time.Minute, discard())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Running() {
		t.Fatal("not running after Start")
	}
	got := h.ctrl.Instruments()
	if len(got) != 2 || got[0].Symbol != "EURUSD.m" || got[1].Symbol != "GOLD" {
		t.Errorf("instruments = %+v", got)
	}
	if inst, ok := h.ctrl.Instrument("GOLD"); !ok || inst.Class != domain.AssetMetal {
		t.Errorf("Instrument(GOLD) = %+v %v", inst, ok)
	}

	r.Stop()
	if r.Running() {
		t.Error("running after Stop")
	}
}

func TestRunner_StartFailsWhenNothingResolves(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	r := NewRunner(h.ctrl, mapResolver{}, time.Minute, discard())
	if err := r.Start(context.Background()); !errors.Is(err, domain.ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
	if r.Running() {
		t.Error("running after failed Start")
	}
}

func TestRunner_RunCyclesWhileStarted(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.source.decisions["EURUSD"] = domain.SignalDecision{Signal: domain.SignalBuy, Confidence: 0.95}
	r := NewRunner(h.ctrl, nil, time.Hour, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.ctrl.LastReport().Result == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	h.wait(t)
	if h.ctrl.LastReport().Result != ResultComplete {
		t.Errorf("last result = %q, want %q", h.ctrl.LastReport().Result, ResultComplete)
	}
}

func TestRunner_Status(t *testing.T) {
	h := newHarness(t, defaultCapacity())
	h.gw.positions = []domain.Position{{Ticket: 1, Symbol: "EURUSD", Profit: 12.5}, {Ticket: 2, Symbol: "XAUUSD", Profit: -2.5}}
	r := NewRunner(h.ctrl, nil, time.Minute, discard())

	st := r.Status(context.Background(), "paper", nil)
	if st.Running || st.Mode != "paper" || st.Account == nil {
		t.Fatalf("status = %+v", st)
	}
	if st.TotalProfit != 10 || len(st.Positions) != 2 || st.Capacity.Open != 2 {
		t.Errorf("status positions = %+v profit = %v capacity = %+v", st.Positions, st.TotalProfit, st.Capacity)
	}
}
