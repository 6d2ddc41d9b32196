package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Log records one signal decision.
func (s *SignalStore) Log(ctx context.Context, rec domain.SignalRecord) error {
	d := rec.Decision
	const query = `
		INSERT INTO signals (symbol, signal, confidence, reason, price, mode, required, outcome, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.pool.Exec(ctx, query,
		d.Symbol, string(d.Signal), d.Confidence, d.Reason, d.Price,
		rec.Mode, rec.Required, string(rec.Outcome), utc(d.At),
	); err != nil {
		return fmt.Errorf("postgres: log signal %s: %w", d.Symbol, err)
	}
	return nil
}

// List returns signal decisions newest first.
func (s *SignalStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SignalRecord, error) {
	query, args := listQuery(
		`SELECT symbol, signal, confidence, reason, price, mode, required, outcome, decided_at FROM signals WHERE 1=1`,
		"decided_at", nil, opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		var rec domain.SignalRecord
		var signal, outcome string
		d := &rec.Decision
		if err := rows.Scan(&d.Symbol, &signal, &d.Confidence, &d.Reason, &d.Price,
			&rec.Mode, &rec.Required, &outcome, &d.At); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		d.Signal = domain.Signal(signal)
		rec.Outcome = domain.SignalOutcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list signals rows: %w", err)
	}
	return out, nil
}
