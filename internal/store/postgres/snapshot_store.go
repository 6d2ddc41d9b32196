package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Record stores one account snapshot.
func (s *SnapshotStore) Record(ctx context.Context, a domain.AccountSnapshot) error {
	const query = `
		INSERT INTO account_snapshots (balance, equity, margin_level, free_margin, profit, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query, a.Balance, a.Equity, a.MarginLevel, a.FreeMargin, a.Profit, utc(a.TakenAt)); err != nil {
		return fmt.Errorf("postgres: record snapshot: %w", err)
	}
	return nil
}

// List returns snapshots newest first.
func (s *SnapshotStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AccountSnapshot, error) {
	query, args := listQuery(
		`SELECT balance, equity, margin_level, free_margin, profit, taken_at FROM account_snapshots WHERE 1=1`,
		"taken_at", nil, opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountSnapshot
	for rows.Next() {
		var a domain.AccountSnapshot
		if err := rows.Scan(&a.Balance, &a.Equity, &a.MarginLevel, &a.FreeMargin, &a.Profit, &a.TakenAt); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return out, nil
}
