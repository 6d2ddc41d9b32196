package guard

import (
	"testing"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

var eurusd = domain.Instrument{Name: "EURUSD", Symbol: "EURUSD", Class: domain.AssetOtherForex}

func TestNewsBlackout_Window(t *testing.T) {
	now := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	events := []domain.NewsEvent{
		{Time: now.Add(14 * time.Minute), Country: "USD", Title: "CPI m/m"},
	}
	ev, blocked := NewsBlackout(events, eurusd, now, 15*time.Minute)
	if !blocked || ev.Title != "CPI m/m" {
		t.Errorf("expected blackout on CPI, got %v %+v", blocked, ev)
	}

	// Past events inside the window also block.
	events[0].Time = now.Add(-15 * time.Minute)
	if _, blocked := NewsBlackout(events, eurusd, now, 15*time.Minute); !blocked {
		t.Error("event 15 minutes ago should still block")
	}

	events[0].Time = now.Add(16 * time.Minute)
	if _, blocked := NewsBlackout(events, eurusd, now, 15*time.Minute); blocked {
		t.Error("event 16 minutes out should not block")
	}
}

func TestNewsBlackout_IrrelevantCurrency(t *testing.T) {
	now := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	events := []domain.NewsEvent{{Time: now, Country: "JPY", Title: "BOJ"}}
	if _, blocked := NewsBlackout(events, eurusd, now, 15*time.Minute); blocked {
		t.Error("JPY event should not block EURUSD")
	}
	events[0].Country = "All"
	if _, blocked := NewsBlackout(events, eurusd, now, 15*time.Minute); !blocked {
		t.Error("ALL event should block every symbol")
	}
}

func TestNewsBlackout_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	events := []domain.NewsEvent{{Time: now.Add(5 * time.Minute), Country: "EUR"}}
	_, first := NewsBlackout(events, eurusd, now, 15*time.Minute)
	for i := 0; i < 3; i++ {
		if _, again := NewsBlackout(events, eurusd, now, 15*time.Minute); again != first {
			t.Fatalf("decision changed on repeat %d", i)
		}
	}
}

func TestSpreadOK(t *testing.T) {
	props := domain.SymbolProperties{Bid: 1.10000, Ask: 1.10050, Point: 0.00001}
	spread, ok := SpreadOK(props, 60)
	if !ok {
		t.Errorf("spread %.1f should pass ceiling 60", spread)
	}
	props.Ask = 1.10070
	if spread, ok := SpreadOK(props, 60); ok {
		t.Errorf("spread %.1f should fail ceiling 60", spread)
	}
	gold := domain.SymbolProperties{Bid: 2300.00, Ask: 2300.80, Point: 0.01}
	if spread, ok := SpreadOK(gold, 1000); !ok {
		t.Errorf("gold spread %.1f should pass ceiling 1000", spread)
	}
}

func TestMarketSchedule_Open(t *testing.T) {
	s := DefaultSchedule()
	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"tuesday midday", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), true},
		{"rollover", time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC), false},
		{"after rollover", time.Date(2026, 3, 10, 22, 10, 0, 0, time.UTC), true},
		{"friday before close", time.Date(2026, 3, 13, 21, 49, 0, 0, time.UTC), true},
		{"friday close", time.Date(2026, 3, 13, 21, 50, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), false},
		{"sunday early", time.Date(2026, 3, 15, 22, 4, 0, 0, time.UTC), false},
		{"sunday rollover tail", time.Date(2026, 3, 15, 22, 5, 0, 0, time.UTC), false},
		{"sunday open", time.Date(2026, 3, 15, 22, 10, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got, reason := s.Open(tc.at); got != tc.open {
				t.Errorf("Open(%v) = %v (%s), want %v", tc.at, got, reason, tc.open)
			}
		})
	}
}
