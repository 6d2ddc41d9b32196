// Package report computes performance statistics over closed deals and
// exports them as CSV.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// profitFactorCap stands in for an infinite profit factor when there are
// winners and no losers.
const profitFactorCap = 99.9

// Stats summarises a window of closed deals.
type Stats struct {
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	TotalTrades  int       `json:"total_trades"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	NetProfit    float64   `json:"net_profit"`
	GrossProfit  float64   `json:"gross_profit"`
	GrossLoss    float64   `json:"gross_loss"`
	WinRate      float64   `json:"win_rate"`
	ProfitFactor float64   `json:"profit_factor"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	EquityCurve  []float64 `json:"equity_curve"`
}

// Compute builds Stats from deals, ordered by close time. The equity curve
// is the running sum of profit; MaxDrawdown is its deepest fall from a peak.
func Compute(deals []domain.Deal, from, to time.Time) Stats {
	sorted := append([]domain.Deal(nil), deals...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ClosedAt.Before(sorted[j].ClosedAt) })

	st := Stats{From: from, To: to, TotalTrades: len(sorted), EquityCurve: make([]float64, 0, len(sorted))}
	var net, gross, loss, peak, dd decimal.Decimal
	for _, d := range sorted {
		p := decimal.NewFromFloat(d.Profit)
		switch p.Sign() {
		case 1:
			st.Wins++
			gross = gross.Add(p)
		case -1:
			st.Losses++
			loss = loss.Add(p.Neg())
		}
		net = net.Add(p)
		if net.GreaterThan(peak) {
			peak = net
		}
		if fall := peak.Sub(net); fall.GreaterThan(dd) {
			dd = fall
		}
		st.EquityCurve = append(st.EquityCurve, net.Round(2).InexactFloat64())
	}

	st.NetProfit = net.Round(2).InexactFloat64()
	st.GrossProfit = gross.Round(2).InexactFloat64()
	st.GrossLoss = loss.Round(2).InexactFloat64()
	st.MaxDrawdown = dd.Round(2).InexactFloat64()
	if st.TotalTrades > 0 {
		st.WinRate = decimal.NewFromInt(int64(st.Wins * 100)).
			Div(decimal.NewFromInt(int64(st.TotalTrades))).Round(1).InexactFloat64()
	}
	switch {
	case loss.IsZero() && gross.IsPositive():
		st.ProfitFactor = profitFactorCap
	case loss.IsPositive():
		st.ProfitFactor = gross.Div(loss).Round(2).InexactFloat64()
	}
	return st
}

// Service reads closed deals from the gateway history.
type Service struct {
	history domain.HistoryProvider
	now     func() time.Time
}

// NewService creates a report Service.
func NewService(history domain.HistoryProvider) *Service {
	return &Service{history: history, now: time.Now}
}

// Window returns the [now-days, now] range; days <= 0 means 30.
func (s *Service) Window(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = 30
	}
	to := s.now().UTC()
	return to.AddDate(0, 0, -days), to
}

// Deals fetches the closed deals in [from, to].
func (s *Service) Deals(ctx context.Context, from, to time.Time) ([]domain.Deal, error) {
	deals, err := s.history.ClosedDeals(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("report: closed deals: %w", err)
	}
	return deals, nil
}

// Stats computes Stats over the last days.
func (s *Service) Stats(ctx context.Context, days int) (Stats, error) {
	from, to := s.Window(days)
	deals, err := s.Deals(ctx, from, to)
	if err != nil {
		return Stats{}, err
	}
	return Compute(deals, from, to), nil
}

var csvHeader = []string{"Time", "Ticket", "Symbol", "Type", "Volume", "Price", "Profit"}

// WriteCSV writes one row per deal under a header row.
func WriteCSV(w io.Writer, deals []domain.Deal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}
	for _, d := range deals {
		row := []string{
			d.ClosedAt.UTC().Format("2006-01-02 15:04"),
			strconv.FormatInt(d.Ticket, 10),
			d.Symbol,
			string(d.Side),
			strconv.FormatFloat(d.Volume, 'f', 2, 64),
			strconv.FormatFloat(d.Price, 'f', -1, 64),
			strconv.FormatFloat(d.Profit, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write row %d: %w", d.Ticket, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
