package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists executed entries.
type TradeStore interface {
	Save(ctx context.Context, trade TradeRecord) error
	List(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
}

// SignalStore persists every signal decision for audit.
type SignalStore interface {
	Log(ctx context.Context, rec SignalRecord) error
	List(ctx context.Context, opts ListOpts) ([]SignalRecord, error)
}

// SnapshotStore persists periodic account snapshots.
type SnapshotStore interface {
	Record(ctx context.Context, snap AccountSnapshot) error
	List(ctx context.Context, opts ListOpts) ([]AccountSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Journal bundles the append-only stores the engine writes to.
type Journal struct {
	Trades    TradeStore
	Signals   SignalStore
	Snapshots SnapshotStore
	Audit     AuditStore
}
