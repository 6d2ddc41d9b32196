// Package bridge is the live MarketGateway: a JSON-over-HTTP client for the
// MetaTrader bridge sidecar that owns the terminal session.
//
// Endpoints:
//
//	GET  /account                      balance, equity, margin
//	GET  /positions                    open positions
//	GET  /symbols                      broker symbol names
//	GET  /symbol/{symbol}              bid, ask, point, digits, stops_level
//	GET  /candles?symbol=&timeframe=&count=
//	POST /order                        market order with SL/TP
//	POST /position/close               close by opposite deal
//	POST /position/modify              move SL/TP
//	GET  /history/deals?from=&to=      closed deals (unix seconds)
//
// When a secret is configured every request is HMAC-signed.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/crypto"
	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Config configures the client.
type Config struct {
	BaseURL   string
	APIKey    string
	Secret    string
	Timeout   time.Duration
	Timeframe string
	Magic     int64
}

// Client implements domain.MarketGateway, domain.SymbolResolver and
// domain.HistoryProvider against the bridge.
type Client struct {
	base       string
	auth       *crypto.HMACAuth
	timeframe  string
	magic      int64
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.RWMutex
	symbols map[string]string
}

// New creates a bridge client.
func New(cfg Config, logger *slog.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	tf := cfg.Timeframe
	if tf == "" {
		tf = "H1"
	}
	c := &Client{
		base:       base,
		timeframe:  tf,
		magic:      cfg.Magic,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "bridge")),
	}
	if cfg.APIKey != "" || cfg.Secret != "" {
		c.auth = &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.Secret}
	}
	return c
}

// StatusError is a non-2xx bridge response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge: status %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("bridge: marshal request: %w", err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("bridge: create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "fxbot/bridge")
	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, string(payload)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: %s %s: %w: %w", method, path, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("bridge: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("bridge: %s: %w", path, domain.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("bridge: %s: %w", path, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("bridge: %s: %w", path, domain.ErrUnavailable)
	case resp.StatusCode >= 300:
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bridge: decode %s: %w", path, err)
	}
	return nil
}

// GetAccount implements domain.MarketGateway.
func (c *Client) GetAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	var a accountResponse
	if err := c.do(ctx, http.MethodGet, "/account", nil, &a); err != nil {
		return domain.AccountSnapshot{}, err
	}
	return domain.AccountSnapshot{
		Balance:     float64(a.Balance),
		Equity:      float64(a.Equity),
		MarginLevel: float64(a.MarginLevel),
		FreeMargin:  float64(a.FreeMargin),
		Profit:      float64(a.Profit),
		TakenAt:     time.Now().UTC(),
	}, nil
}

// GetOpenPositions implements domain.MarketGateway.
func (c *Client) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	var rows []positionResponse
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(rows))
	for _, p := range rows {
		side := domain.SideBuy
		if strings.EqualFold(p.Type, "SELL") || p.Type == "1" {
			side = domain.SideSell
		}
		out = append(out, domain.Position{
			Ticket:     p.Ticket,
			Symbol:     p.Symbol,
			Side:       side,
			Volume:     float64(p.Volume),
			OpenPrice:  float64(p.OpenPrice),
			StopLoss:   float64(p.SL),
			TakeProfit: float64(p.TP),
			Profit:     float64(p.Profit),
		})
	}
	return out, nil
}

// GetSymbolProperties implements domain.MarketGateway. The broker stops
// level is converted from points into price units.
func (c *Client) GetSymbolProperties(ctx context.Context, symbol string) (domain.SymbolProperties, error) {
	var s symbolResponse
	if err := c.do(ctx, http.MethodGet, "/symbol/"+url.PathEscape(symbol), nil, &s); err != nil {
		return domain.SymbolProperties{}, err
	}
	return domain.SymbolProperties{
		Symbol:          symbol,
		Bid:             float64(s.Bid),
		Ask:             float64(s.Ask),
		Point:           float64(s.Point),
		MinStopDistance: float64(s.StopsLevel) * float64(s.Point),
		Digits:          s.Digits,
	}, nil
}

// GetRecentCandles implements domain.MarketGateway.
func (c *Client) GetRecentCandles(ctx context.Context, symbol string, count int) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", c.timeframe)
	q.Set("count", strconv.Itoa(count))

	var rows []candleResponse
	if err := c.do(ctx, http.MethodGet, "/candles?"+q.Encode(), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Candle{
			Time:   time.Time(r.Time),
			Open:   float64(r.Open),
			High:   float64(r.High),
			Low:    float64(r.Low),
			Close:  float64(r.Close),
			Volume: float64(r.Volume),
		})
	}
	return out, nil
}

// Execute implements domain.MarketGateway. Transport failures are returned
// as errors; broker refusals come back as a result with a retcode.
func (c *Client) Execute(ctx context.Context, o domain.OrderRequest) (domain.OrderResult, error) {
	req := orderRequest{
		Symbol:  o.Symbol,
		Side:    string(o.Side),
		Volume:  o.Volume,
		SL:      o.StopLoss,
		TP:      o.TakeProfit,
		Comment: o.Comment,
		Magic:   c.magic,
	}
	var r orderResponse
	if err := c.do(ctx, http.MethodPost, "/order", req, &r); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return domain.OrderResult{Message: se.Body, Retcode: domain.RetcodeInvalidRequest}, nil
		}
		return domain.OrderResult{}, err
	}
	res := domain.OrderResult{
		Success: r.Retcode == domain.RetcodeDone,
		Ticket:  r.Order,
		Price:   float64(r.Price),
		Retcode: r.Retcode,
		Message: r.Comment,
	}
	if res.Message == "" && res.Success {
		res.Message = "done"
	}
	return res, nil
}

// ClosePosition implements domain.MarketGateway.
func (c *Client) ClosePosition(ctx context.Context, p domain.Position) (bool, error) {
	req := closeRequest{Ticket: p.Ticket, Symbol: p.Symbol, Volume: p.Volume, Side: string(p.Side), Magic: c.magic}
	var r okResponse
	if err := c.do(ctx, http.MethodPost, "/position/close", req, &r); err != nil {
		return false, err
	}
	if !r.Success {
		c.logger.Warn("close refused",
			slog.Int64("ticket", p.Ticket),
			slog.Int("retcode", r.Retcode),
			slog.String("message", r.Message),
		)
	}
	return r.Success, nil
}

// ModifyStops implements domain.MarketGateway.
func (c *Client) ModifyStops(ctx context.Context, ticket int64, sl, tp float64) (bool, error) {
	var r okResponse
	if err := c.do(ctx, http.MethodPost, "/position/modify", modifyRequest{Ticket: ticket, SL: sl, TP: tp}, &r); err != nil {
		return false, err
	}
	return r.Success, nil
}

// ClosedDeals implements domain.HistoryProvider.
func (c *Client) ClosedDeals(ctx context.Context, from, to time.Time) ([]domain.Deal, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))

	var rows []dealResponse
	if err := c.do(ctx, http.MethodGet, "/history/deals?"+q.Encode(), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Deal, 0, len(rows))
	for _, d := range rows {
		side := domain.SideBuy
		if strings.EqualFold(d.Type, "SELL") {
			side = domain.SideSell
		}
		out = append(out, domain.Deal{
			Ticket:   d.Ticket,
			Symbol:   d.Symbol,
			Side:     side,
			Volume:   float64(d.Volume),
			Price:    float64(d.Price),
			Profit:   float64(d.Profit),
			ClosedAt: time.Time(d.Time),
		})
	}
	return out, nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// ResolveSymbol implements domain.SymbolResolver. Broker names such as
// "EURUSD.m" or "XAUUSD_i" are matched to the canonical name by exact name,
// then the part before any suffix separator, then alphanumerics only, then
// substring containment.
func (c *Client) ResolveSymbol(ctx context.Context, name string) (string, error) {
	if err := c.loadSymbols(ctx); err != nil {
		return "", err
	}
	target := strings.ToUpper(name)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.symbols[target]; ok {
		return s, nil
	}
	for k, v := range c.symbols {
		if strings.Contains(k, target) || strings.Contains(target, k) {
			return v, nil
		}
	}
	return "", fmt.Errorf("bridge: %s: %w", name, domain.ErrUnknownSymbol)
}

func (c *Client) loadSymbols(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.symbols != nil
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	var names []string
	if err := c.do(ctx, http.MethodGet, "/symbols", nil, &names); err != nil {
		return err
	}
	index := make(map[string]string, len(names)*2)
	for _, n := range names {
		up := strings.ToUpper(n)
		index[up] = n
		clean := strings.SplitN(strings.SplitN(up, ".", 2)[0], "_", 2)[0]
		if _, ok := index[clean]; !ok {
			index[clean] = n
		}
		simple := nonAlnum.ReplaceAllString(up, "")
		if _, ok := index[simple]; !ok {
			index[simple] = n
		}
	}

	c.mu.Lock()
	c.symbols = index
	c.mu.Unlock()
	c.logger.Info("broker symbols indexed", slog.Int("count", len(names)))
	return nil
}
