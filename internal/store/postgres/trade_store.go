package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `ticket, symbol, side, volume, price, stop_loss, take_profit,
	confidence, reason, source, attempts, opened_at`

const insertTrade = `
	INSERT INTO trades (
		ticket, symbol, side, volume, price, stop_loss, take_profit,
		confidence, reason, source, attempts, opened_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (ticket) DO NOTHING`

func tradeArgs(t domain.TradeRecord) []any {
	return []any{
		t.Ticket, t.Symbol, string(t.Side), t.Volume, t.Price, t.StopLoss, t.TakeProfit,
		t.Confidence, t.Reason, t.Source, t.Attempts, utc(t.OpenedAt),
	}
}

// Save inserts an executed entry. A repeated ticket is ignored.
func (s *TradeStore) Save(ctx context.Context, t domain.TradeRecord) error {
	if _, err := s.pool.Exec(ctx, insertTrade, tradeArgs(t)...); err != nil {
		return fmt.Errorf("postgres: save trade %d: %w", t.Ticket, err)
	}
	return nil
}

// SaveBatch inserts several entries in one round trip.
func (s *TradeStore) SaveBatch(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTrade, tradeArgs(t)...)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: save trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// List returns trades newest first.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(`SELECT `+tradeSelectCols+` FROM trades WHERE 1=1`, "opened_at", nil, opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side string
		if err := rows.Scan(
			&t.Ticket, &t.Symbol, &side, &t.Volume, &t.Price, &t.StopLoss, &t.TakeProfit,
			&t.Confidence, &t.Reason, &t.Source, &t.Attempts, &t.OpenedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return out, nil
}
