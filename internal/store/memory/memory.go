// Package memory provides in-process implementations of the journal stores,
// used in paper and monitor modes when PostgreSQL is disabled.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// defaultCap bounds each store; the oldest rows are dropped beyond it.
const defaultCap = 10000

// NewJournal returns a Journal backed by in-memory stores.
func NewJournal() domain.Journal {
	return domain.Journal{
		Trades:    NewTradeStore(),
		Signals:   NewSignalStore(),
		Snapshots: NewSnapshotStore(),
		Audit:     NewAuditStore(),
	}
}

// log is an append-only, capped, time-indexed list.
type log[T any] struct {
	mu   sync.RWMutex
	rows []T
	at   func(T) time.Time
}

func (l *log[T]) append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, v)
	if over := len(l.rows) - defaultCap; over > 0 {
		l.rows = append(l.rows[:0:0], l.rows[over:]...)
	}
}

// list returns newest first, honouring Since/Until/Offset/Limit.
func (l *log[T]) list(opts domain.ListOpts) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, 0)
	skipped := 0
	for i := len(l.rows) - 1; i >= 0; i-- {
		v := l.rows[i]
		ts := l.at(v)
		if opts.Since != nil && ts.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && ts.After(*opts.Until) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, v)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

// TradeStore implements domain.TradeStore.
type TradeStore struct{ l log[domain.TradeRecord] }

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{l: log[domain.TradeRecord]{at: func(t domain.TradeRecord) time.Time { return t.OpenedAt }}}
}

func (s *TradeStore) Save(_ context.Context, t domain.TradeRecord) error {
	s.l.append(t)
	return nil
}

func (s *TradeStore) List(_ context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	return s.l.list(opts), nil
}

// SignalStore implements domain.SignalStore.
type SignalStore struct{ l log[domain.SignalRecord] }

// NewSignalStore creates an empty SignalStore.
func NewSignalStore() *SignalStore {
	return &SignalStore{l: log[domain.SignalRecord]{at: func(r domain.SignalRecord) time.Time { return r.Decision.At }}}
}

func (s *SignalStore) Log(_ context.Context, r domain.SignalRecord) error {
	s.l.append(r)
	return nil
}

func (s *SignalStore) List(_ context.Context, opts domain.ListOpts) ([]domain.SignalRecord, error) {
	return s.l.list(opts), nil
}

// SnapshotStore implements domain.SnapshotStore.
type SnapshotStore struct{ l log[domain.AccountSnapshot] }

// NewSnapshotStore creates an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{l: log[domain.AccountSnapshot]{at: func(a domain.AccountSnapshot) time.Time { return a.TakenAt }}}
}

func (s *SnapshotStore) Record(_ context.Context, a domain.AccountSnapshot) error {
	s.l.append(a)
	return nil
}

func (s *SnapshotStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AccountSnapshot, error) {
	return s.l.list(opts), nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	l    log[domain.AuditEntry]
	mu   sync.Mutex
	next int64
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{l: log[domain.AuditEntry]{at: func(e domain.AuditEntry) time.Time { return e.CreatedAt }}}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	s.next++
	id := s.next
	s.mu.Unlock()
	s.l.append(domain.AuditEntry{ID: id, Event: event, Detail: detail, CreatedAt: time.Now().UTC()})
	return nil
}

func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.l.list(opts), nil
}
