package domain

import (
	"context"
	"time"
)

// MarketGateway is the broker boundary. Implementations must be safe for
// concurrent use.
type MarketGateway interface {
	GetAccount(ctx context.Context) (AccountSnapshot, error)
	GetOpenPositions(ctx context.Context) ([]Position, error)
	GetSymbolProperties(ctx context.Context, symbol string) (SymbolProperties, error)
	GetRecentCandles(ctx context.Context, symbol string, count int) ([]Candle, error)
	Execute(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, pos Position) (bool, error)
	ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (bool, error)
}

// SymbolResolver maps a canonical name to the broker's symbol.
type SymbolResolver interface {
	ResolveSymbol(ctx context.Context, name string) (string, error)
}

// HistoryProvider returns closed deals for reporting.
type HistoryProvider interface {
	ClosedDeals(ctx context.Context, from, to time.Time) ([]Deal, error)
}

// NewsFeed lists upcoming high-impact economic events.
type NewsFeed interface {
	UpcomingHighImpactEvents(ctx context.Context) []NewsEvent
}
