package executor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Reservation marks an execution for Symbol as in flight.
type Reservation struct {
	Symbol string    `json:"symbol"`
	Token  string    `json:"token"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// ReservationSet holds at most one reservation per symbol. It is safe for
// concurrent use by the cycle and by detached executions.
type ReservationSet struct {
	held map[string]Reservation
	mu   sync.Mutex
}

// NewReservationSet creates an empty set.
func NewReservationSet() *ReservationSet {
	return &ReservationSet{held: make(map[string]Reservation)}
}

// TryReserve atomically reserves symbol. It fails with ErrAlreadyReserved
// when the symbol is already held.
func (s *ReservationSet) TryReserve(symbol, source string) (Reservation, error) {
	return s.TryReserveWithin(symbol, source, 0, 0)
}

// TryReserveWithin reserves symbol only if open plus pending reservations is
// below limit. The capacity check and the insert happen under the same lock.
// counted lists reservations the caller already saw; they stay pending even
// if released since, because their fills may be missing from open.
// A limit of 0 disables the capacity check.
func (s *ReservationSet) TryReserveWithin(symbol, source string, open, limit int, counted ...string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.held[symbol]; ok {
		return Reservation{}, domain.ErrAlreadyReserved
	}
	if limit > 0 && open+s.pendingLocked(counted) >= limit {
		return Reservation{}, domain.ErrCapacityFull
	}

	r := Reservation{
		Symbol: symbol,
		Token:  uuid.NewString(),
		Source: source,
		At:     time.Now().UTC(),
	}
	s.held[symbol] = r
	return r, nil
}

// pendingLocked counts held reservations plus counted symbols no longer held.
func (s *ReservationSet) pendingLocked(counted []string) int {
	n := len(s.held)
	for _, sym := range counted {
		if _, ok := s.held[sym]; !ok {
			n++
		}
	}
	return n
}

// Release removes r if it is still the holder for its symbol. It reports
// whether anything was removed.
func (s *ReservationSet) Release(r Reservation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.held[r.Symbol]
	if !ok || cur.Token != r.Token {
		return false
	}
	delete(s.held, r.Symbol)
	return true
}

// Held reports whether symbol is reserved.
func (s *ReservationSet) Held(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[symbol]
	return ok
}

// Len is the number of pending reservations.
func (s *ReservationSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// Symbols returns the reserved symbols in sorted order.
func (s *ReservationSet) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.held))
	for sym := range s.held {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// List returns a copy of all reservations.
func (s *ReservationSet) List() []Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reservation, 0, len(s.held))
	for _, r := range s.held {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
