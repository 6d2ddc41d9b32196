// Package paper simulates a broker in memory. Fills happen at the current
// quote of a MarketData source, stops are checked whenever positions are
// read, and realised profit is booked into the balance.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const leverage = 100

// Config configures the simulated account.
type Config struct {
	StartingBalance float64
}

type position struct {
	domain.Position
	orderID string
}

// Gateway implements domain.MarketGateway, domain.SymbolResolver and
// domain.HistoryProvider without a broker.
type Gateway struct {
	data   MarketData
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	balance    float64
	nextTicket int64
	positions  map[int64]*position
	deals      []domain.Deal
}

// New creates a paper gateway quoting from data.
func New(cfg Config, data MarketData, logger *slog.Logger) *Gateway {
	return &Gateway{
		data:       data,
		logger:     logger.With(slog.String("component", "paper")),
		now:        time.Now,
		balance:    cfg.StartingBalance,
		nextTicket: 100000,
		positions:  make(map[int64]*position),
	}
}

// contractSize is the units per lot for profit calculation.
func contractSize(symbol string) float64 {
	if strings.HasPrefix(canonical(symbol), "XAU") {
		return 100
	}
	return 100000
}

// pnl returns profit in account currency (USD) for closing p at price.
func pnl(p domain.Position, price float64) float64 {
	diff := price - p.OpenPrice
	if p.Side == domain.SideSell {
		diff = -diff
	}
	profit := diff * p.Volume * contractSize(p.Symbol)
	if strings.HasPrefix(canonical(p.Symbol), "USD") && price > 0 {
		profit /= price
	}
	return decimal.NewFromFloat(profit).Round(2).InexactFloat64()
}

// marginOf is the USD margin held by p.
func marginOf(p domain.Position) float64 {
	notional := p.Volume * contractSize(p.Symbol)
	if !strings.HasPrefix(canonical(p.Symbol), "USD") {
		notional *= p.OpenPrice
	}
	return notional / leverage
}

// exitPrice is the side of the book a position closes against.
func exitPrice(side domain.Side, q domain.SymbolProperties) float64 {
	if side == domain.SideBuy {
		return q.Bid
	}
	return q.Ask
}

// GetAccount implements domain.MarketGateway.
func (g *Gateway) GetAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	if _, err := g.GetOpenPositions(ctx); err != nil {
		return domain.AccountSnapshot{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var floating, margin float64
	for _, p := range g.positions {
		floating += p.Profit
		margin += marginOf(p.Position)
	}
	equity := g.balance + floating
	acct := domain.AccountSnapshot{
		Balance:    g.balance,
		Equity:     equity,
		FreeMargin: equity - margin,
		Profit:     floating,
		TakenAt:    g.now().UTC(),
	}
	if margin > 0 {
		acct.MarginLevel = equity / margin * 100
	}
	return acct, nil
}

// GetOpenPositions marks positions to market and closes any whose stop
// loss or take profit has been crossed.
func (g *Gateway) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	g.mu.Lock()
	open := make([]*position, 0, len(g.positions))
	for _, p := range g.positions {
		open = append(open, p)
	}
	g.mu.Unlock()

	quotes := make(map[string]domain.SymbolProperties)
	for _, p := range open {
		if _, ok := quotes[p.Symbol]; ok {
			continue
		}
		q, err := g.data.GetSymbolProperties(ctx, p.Symbol)
		if err != nil {
			return nil, fmt.Errorf("paper: quote %s: %w", p.Symbol, err)
		}
		quotes[p.Symbol] = q
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Position, 0, len(open))
	for _, p := range open {
		if _, ok := g.positions[p.Ticket]; !ok {
			continue
		}
		price := exitPrice(p.Side, quotes[p.Symbol])
		if hit, at := stopHit(p.Position, price); hit {
			g.closeLocked(p, at)
			continue
		}
		p.Profit = pnl(p.Position, price)
		out = append(out, p.Position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func stopHit(p domain.Position, price float64) (bool, float64) {
	if p.Side == domain.SideBuy {
		if p.StopLoss > 0 && price <= p.StopLoss {
			return true, p.StopLoss
		}
		if p.TakeProfit > 0 && price >= p.TakeProfit {
			return true, p.TakeProfit
		}
		return false, 0
	}
	if p.StopLoss > 0 && price >= p.StopLoss {
		return true, p.StopLoss
	}
	if p.TakeProfit > 0 && price <= p.TakeProfit {
		return true, p.TakeProfit
	}
	return false, 0
}

func (g *Gateway) closeLocked(p *position, price float64) {
	profit := pnl(p.Position, price)
	g.balance = decimal.NewFromFloat(g.balance).Add(decimal.NewFromFloat(profit)).InexactFloat64()
	delete(g.positions, p.Ticket)
	g.deals = append(g.deals, domain.Deal{
		Ticket:   p.Ticket,
		Symbol:   p.Symbol,
		Side:     p.Side,
		Volume:   p.Volume,
		Price:    price,
		Profit:   profit,
		ClosedAt: g.now().UTC(),
	})
	g.logger.Info("paper position closed",
		slog.Int64("ticket", p.Ticket),
		slog.String("symbol", p.Symbol),
		slog.Float64("price", price),
		slog.Float64("profit", profit),
	)
}

// GetSymbolProperties implements domain.MarketGateway.
func (g *Gateway) GetSymbolProperties(ctx context.Context, symbol string) (domain.SymbolProperties, error) {
	return g.data.GetSymbolProperties(ctx, symbol)
}

// GetRecentCandles implements domain.MarketGateway.
func (g *Gateway) GetRecentCandles(ctx context.Context, symbol string, count int) ([]domain.Candle, error) {
	return g.data.GetRecentCandles(ctx, symbol, count)
}

// Execute fills a market order at the ask for BUY and the bid for SELL.
func (g *Gateway) Execute(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Volume <= 0 {
		return domain.OrderResult{Retcode: domain.RetcodeInvalidVolume, Message: "invalid volume"}, nil
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return domain.OrderResult{Retcode: domain.RetcodeInvalidRequest, Message: "invalid side"}, nil
	}
	q, err := g.data.GetSymbolProperties(ctx, req.Symbol)
	if err != nil {
		return domain.OrderResult{Retcode: domain.RetcodeInvalidRequest, Message: err.Error()}, nil
	}
	price := q.Ask
	if req.Side == domain.SideSell {
		price = q.Bid
	}
	if req.StopLoss > 0 && (req.Side == domain.SideBuy) == (req.StopLoss >= price) {
		return domain.OrderResult{Retcode: domain.RetcodeInvalidStops, Message: "invalid stops"}, nil
	}

	g.mu.Lock()
	g.nextTicket++
	p := &position{
		Position: domain.Position{
			Ticket:     g.nextTicket,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Volume:     req.Volume,
			OpenPrice:  price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
		},
		orderID: uuid.NewString(),
	}
	g.positions[p.Ticket] = p
	g.mu.Unlock()

	g.logger.Info("paper fill",
		slog.Int64("ticket", p.Ticket),
		slog.String("order_id", p.orderID),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.Float64("volume", req.Volume),
		slog.Float64("price", price),
	)
	return domain.OrderResult{
		Success: true,
		Ticket:  p.Ticket,
		Price:   price,
		Retcode: domain.RetcodeDone,
		Message: "paper " + p.orderID,
	}, nil
}

// ClosePosition implements domain.MarketGateway. Unknown tickets report false.
func (g *Gateway) ClosePosition(ctx context.Context, pos domain.Position) (bool, error) {
	g.mu.Lock()
	p, ok := g.positions[pos.Ticket]
	g.mu.Unlock()
	if !ok {
		return false, nil
	}
	q, err := g.data.GetSymbolProperties(ctx, p.Symbol)
	if err != nil {
		return false, fmt.Errorf("paper: quote %s: %w", p.Symbol, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.positions[pos.Ticket]; !ok {
		return false, nil
	}
	g.closeLocked(p, exitPrice(p.Side, q))
	return true, nil
}

// ModifyStops implements domain.MarketGateway.
func (g *Gateway) ModifyStops(_ context.Context, ticket int64, stopLoss, takeProfit float64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.positions[ticket]
	if !ok {
		return false, nil
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	return true, nil
}

// ClosedDeals implements domain.HistoryProvider.
func (g *Gateway) ClosedDeals(_ context.Context, from, to time.Time) ([]domain.Deal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Deal, 0, len(g.deals))
	for _, d := range g.deals {
		if d.ClosedAt.Before(from) || d.ClosedAt.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ResolveSymbol implements domain.SymbolResolver by delegating to the data
// source when it can resolve, and probing it for a quote otherwise.
func (g *Gateway) ResolveSymbol(ctx context.Context, name string) (string, error) {
	if r, ok := g.data.(domain.SymbolResolver); ok {
		return r.ResolveSymbol(ctx, name)
	}
	symbol := strings.ToUpper(strings.TrimSpace(name))
	if _, err := g.data.GetSymbolProperties(ctx, symbol); err != nil {
		return "", fmt.Errorf("paper: %s: %w", name, domain.ErrUnknownSymbol)
	}
	return symbol, nil
}
