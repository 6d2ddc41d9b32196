// Package risk holds the account-level risk rules: the capacity slot model,
// the confidence policy table, the daily kill-switch and position sizing.
package risk

import (
	"fmt"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Mode is the global capacity mode of a cycle.
type Mode string

const (
	ModeNormal Mode = "NORMAL"
	ModeSniper Mode = "SNIPER"
	ModeFull   Mode = "FULL"
)

// CapacityConfig holds the slot constants. A missing or zero class cap
// disables the class sub-cap.
type CapacityConfig struct {
	BaseSlots       int
	SniperSlots     int
	SymbolCapNormal int
	SymbolCapSniper int
	ClassCaps       map[domain.AssetClass]int
}

// Limit is the hard ceiling on occupied slots.
func (c CapacityConfig) Limit() int { return c.BaseSlots + c.SniperSlots }

// ModeFor maps an occupied count to a mode.
func (c CapacityConfig) ModeFor(occupied int) Mode {
	switch {
	case occupied < c.BaseSlots:
		return ModeNormal
	case occupied < c.Limit():
		return ModeSniper
	default:
		return ModeFull
	}
}

// CapacityState is the per-cycle view of occupied slots. It is derived fresh
// each cycle and updated in place as the cycle makes reservations.
type CapacityState struct {
	cfg      CapacityConfig
	open     int
	pending  int
	bySymbol map[string]int
	byClass  map[domain.AssetClass]int
}

// ComputeCapacity derives the state from open positions and in-flight
// reservations. classOf resolves a broker symbol to its class; symbols it
// does not know count globally but not toward any class.
func ComputeCapacity(cfg CapacityConfig, positions []domain.Position, reserved []string, classOf func(string) (domain.AssetClass, bool)) *CapacityState {
	s := &CapacityState{
		cfg:      cfg,
		open:     len(positions),
		pending:  len(reserved),
		bySymbol: make(map[string]int),
		byClass:  make(map[domain.AssetClass]int),
	}
	count := func(symbol string) {
		s.bySymbol[symbol]++
		if class, ok := classOf(symbol); ok {
			s.byClass[class]++
		}
	}
	for _, p := range positions {
		count(p.Symbol)
	}
	for _, sym := range reserved {
		count(sym)
	}
	return s
}

// Open is the number of broker positions.
func (s *CapacityState) Open() int { return s.open }

// Pending is the number of in-flight reservations.
func (s *CapacityState) Pending() int { return s.pending }

// Occupied is open + pending.
func (s *CapacityState) Occupied() int { return s.open + s.pending }

// Mode is the current global mode.
func (s *CapacityState) Mode() Mode { return s.cfg.ModeFor(s.Occupied()) }

// SymbolCount is positions plus reservations for one symbol.
func (s *CapacityState) SymbolCount(symbol string) int { return s.bySymbol[symbol] }

// ClassCount is positions plus reservations for one class.
func (s *CapacityState) ClassCount(class domain.AssetClass) int { return s.byClass[class] }

// Admit reports whether one more slot may be taken for symbol. The returned
// reason is empty when admitted.
func (s *CapacityState) Admit(symbol string, class domain.AssetClass) (bool, string) {
	mode := s.Mode()
	if mode == ModeFull {
		return false, fmt.Sprintf("capacity full (%d/%d)", s.Occupied(), s.cfg.Limit())
	}

	symbolCap := s.cfg.SymbolCapNormal
	if mode == ModeSniper {
		symbolCap = s.cfg.SymbolCapSniper
	}
	if n := s.bySymbol[symbol]; n >= symbolCap {
		return false, fmt.Sprintf("symbol cap reached (%d/%d)", n, symbolCap)
	}

	if classCap := s.cfg.ClassCaps[class]; classCap > 0 {
		if mode == ModeSniper {
			classCap++
		}
		if n := s.byClass[class]; n >= classCap {
			return false, fmt.Sprintf("%s cap reached (%d/%d)", class, n, classCap)
		}
	}
	return true, ""
}

// Reserve records a reservation made during this cycle.
func (s *CapacityState) Reserve(symbol string, class domain.AssetClass) {
	s.pending++
	s.bySymbol[symbol]++
	s.byClass[class]++
}

// CapacitySnapshot is the serialisable view used by the status query.
type CapacitySnapshot struct {
	Mode     Mode `json:"mode"`
	Open     int  `json:"open"`
	Pending  int  `json:"pending"`
	Occupied int  `json:"occupied"`
	Limit    int  `json:"limit"`
}

// Snapshot returns a copy of the counters.
func (s *CapacityState) Snapshot() CapacitySnapshot {
	return CapacitySnapshot{
		Mode:     s.Mode(),
		Open:     s.open,
		Pending:  s.pending,
		Occupied: s.Occupied(),
		Limit:    s.cfg.Limit(),
	}
}
