package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/engine"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/news"
	"github.com/alanyoungcy/fxbot/internal/report"
	"github.com/alanyoungcy/fxbot/internal/server/handler"
	"github.com/alanyoungcy/fxbot/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEngine struct {
	running  bool
	startErr error
	tradeErr error
	orders   []engine.ManualOrder
}

func (f *fakeEngine) Status(context.Context) engine.Status {
	return engine.Status{
		Running:   f.running,
		Mode:      "paper",
		Logs:      []string{"cycle complete"},
		Account:   &domain.AccountSnapshot{Balance: 10000, Equity: 10050},
		Positions: []domain.Position{},
	}
}

func (f *fakeEngine) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeEngine) Stop() { f.running = false }

func (f *fakeEngine) ManualTrade(_ context.Context, o engine.ManualOrder) (executor.Outcome, error) {
	f.orders = append(f.orders, o)
	if f.tradeErr != nil {
		return executor.Outcome{Symbol: o.Symbol, Message: f.tradeErr.Error()}, f.tradeErr
	}
	return executor.Outcome{Symbol: o.Symbol, Side: string(o.Side), Filled: true, Ticket: 100001, Volume: 0.3}, nil
}

type fakeHistory struct {
	deals []domain.Deal
	err   error
}

func (f fakeHistory) ClosedDeals(context.Context, time.Time, time.Time) ([]domain.Deal, error) {
	return f.deals, f.err
}

type fakeBlobs map[string]string

func (f fakeBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	v, ok := f[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (f fakeBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f[path]
	return ok, nil
}

type fixture struct {
	srv     *Server
	engine  *fakeEngine
	journal domain.Journal
}

func newFixture(t *testing.T, cfg Config, history fakeHistory) *fixture {
	t.Helper()
	log := discardLogger()
	eng := &fakeEngine{}
	journal := memory.NewJournal()
	h := Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"gateway": func(context.Context) error { return nil },
		}),
		Engine:  handler.NewEngineHandler(eng, log),
		News:    handler.NewNewsHandler(news.Static{{Country: "USD", Title: "Non-Farm Payrolls", Impact: "High"}}),
		Report:  handler.NewReportHandler(report.NewService(history), log),
		Journal: handler.NewJournalHandler(journal, log),
		Charts:  handler.NewChartHandler(fakeBlobs{"snapshots/EURUSD/7.svg": "<svg/>"}, log),
	}
	return &fixture{srv: New(cfg, h, nil, memory.NewRateLimiter(), log), engine: eng, journal: journal}
}

func (f *fixture) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestServer_HealthAndStatus(t *testing.T) {
	f := newFixture(t, Config{}, fakeHistory{})

	rec := f.do(http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/status", "")
	st := decode(t, rec)
	if st["mode"] != "paper" || st["running"] != false {
		t.Fatalf("status = %v", st)
	}
}

func TestServer_StartStop(t *testing.T) {
	f := newFixture(t, Config{}, fakeHistory{})

	if rec := f.do(http.MethodPost, "/api/bot/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start = %d", rec.Code)
	}
	if !f.engine.running {
		t.Fatal("engine not started")
	}
	if rec := f.do(http.MethodPost, "/api/bot/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop = %d", rec.Code)
	}
	if f.engine.running {
		t.Fatal("engine still running")
	}

	f.engine.startErr = fmt.Errorf("engine: no configured symbol resolved: %w", domain.ErrUnknownSymbol)
	if rec := f.do(http.MethodPost, "/api/bot/start", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("failed start = %d, want 503", rec.Code)
	}
}

func TestServer_ManualTrade(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"filled", `{"symbol":"EURUSD","side":"BUY"}`, nil, http.StatusCreated},
		{"bad json", `{"symbol":`, nil, http.StatusBadRequest},
		{"missing symbol", `{"side":"BUY"}`, nil, http.StatusBadRequest},
		{"unknown symbol", `{"symbol":"BTCUSD","side":"BUY"}`, domain.ErrUnknownSymbol, http.StatusNotFound},
		{"kill switch", `{"symbol":"EURUSD","side":"SELL"}`, domain.ErrKillSwitch, http.StatusConflict},
		{"reserved", `{"symbol":"EURUSD","side":"SELL"}`, fmt.Errorf("executor: %w", domain.ErrAlreadyReserved), http.StatusConflict},
		{"no money", `{"symbol":"EURUSD","side":"SELL"}`, fmt.Errorf("executor: %w", domain.ErrInsufficientMargin), http.StatusUnprocessableEntity},
		{"exhausted", `{"symbol":"EURUSD","side":"SELL"}`, fmt.Errorf("executor: %w", domain.ErrUnavailable), http.StatusServiceUnavailable},
		{"other", `{"symbol":"EURUSD","side":"SELL"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, fakeHistory{})
			f.engine.tradeErr = tt.err
			rec := f.do(http.MethodPost, "/api/trade", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServer_ManualTradeRateLimited(t *testing.T) {
	f := newFixture(t, Config{ManualTradeLimit: 2, ManualTradeWindow: time.Minute}, fakeHistory{})
	body := `{"symbol":"EURUSD","side":"BUY"}`
	for i := 0; i < 2; i++ {
		if rec := f.do(http.MethodPost, "/api/trade", body); rec.Code != http.StatusCreated {
			t.Fatalf("trade %d = %d", i, rec.Code)
		}
	}
	rec := f.do(http.MethodPost, "/api/trade", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third trade = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
	if len(f.engine.orders) != 2 {
		t.Errorf("engine saw %d orders, want 2", len(f.engine.orders))
	}
}

func TestServer_Auth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "s3cret"}, fakeHistory{})

	if rec := f.do(http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health without key = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/status", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/status", "", "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong key = %d, want 401", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/status", "", "X-API-Key", "s3cret"); rec.Code != http.StatusOK {
		t.Errorf("status with X-API-Key = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/status?api_key=s3cret", ""); rec.Code != http.StatusOK {
		t.Errorf("status with query key = %d, want 200", rec.Code)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, fakeHistory{})

	rec := f.do(http.MethodOptions, "/api/trade", "", "Origin", "http://localhost:3000")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}

	rec = f.do(http.MethodGet, "/api/health", "", "Origin", "http://evil.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow origin for foreign site = %q, want empty", got)
	}
}

func TestServer_NewsAndReport(t *testing.T) {
	deals := []domain.Deal{
		{Ticket: 1, Symbol: "EURUSD", Side: domain.SideBuy, Volume: 0.3, Profit: 30, ClosedAt: time.Now().Add(-2 * time.Hour)},
		{Ticket: 2, Symbol: "XAUUSD", Side: domain.SideSell, Volume: 0.2, Profit: -10, ClosedAt: time.Now().Add(-time.Hour)},
	}
	f := newFixture(t, Config{}, fakeHistory{deals: deals})

	rec := f.do(http.MethodGet, "/api/news", "")
	events := decode(t, rec)["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("news events = %v", events)
	}

	rec = f.do(http.MethodGet, "/api/report?days=7", "")
	out := decode(t, rec)
	stats := out["stats"].(map[string]any)
	if stats["net_profit"] != 20.0 || stats["total_trades"] != 2.0 || stats["profit_factor"] != 3.0 {
		t.Fatalf("stats = %v", stats)
	}
	if out["source"] != "history" {
		t.Errorf("source = %v", out["source"])
	}

	rec = f.do(http.MethodGet, "/api/report/export.csv", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	if lines := strings.Count(strings.TrimSpace(rec.Body.String()), "\n"); lines != 2 {
		t.Errorf("csv rows = %d, want 2 plus header", lines)
	}
}

func TestServer_ReportHistoryUnavailable(t *testing.T) {
	f := newFixture(t, Config{}, fakeHistory{err: domain.ErrUnavailable})

	rec := f.do(http.MethodGet, "/api/report", "")
	if rec.Code != http.StatusOK || decode(t, rec)["source"] != "unavailable" {
		t.Fatalf("report = %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/api/report/export.csv", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("export = %d, want 503", rec.Code)
	}
}

func TestServer_JournalAndCharts(t *testing.T) {
	f := newFixture(t, Config{}, fakeHistory{})
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		f.journal.Trades.Save(ctx, domain.TradeRecord{Ticket: i, Symbol: "EURUSD", OpenedAt: time.Now().Add(time.Duration(i) * time.Minute)})
	}

	rec := f.do(http.MethodGet, "/api/trades?limit=2", "")
	trades := decode(t, rec)["trades"].([]any)
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}

	rec = f.do(http.MethodGet, "/api/audit", "")
	if audit := decode(t, rec)["audit"].([]any); len(audit) != 0 {
		t.Errorf("audit = %v, want empty list", audit)
	}

	rec = f.do(http.MethodGet, "/api/charts/EURUSD/7", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/svg+xml" || rec.Body.String() != "<svg/>" {
		t.Fatalf("chart = %d %q %q", rec.Code, rec.Header().Get("Content-Type"), rec.Body.String())
	}
	if rec := f.do(http.MethodGet, "/api/charts/EURUSD/8", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing chart = %d, want 404", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/charts/EURUSD/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad ticket = %d, want 400", rec.Code)
	}
}

func TestServer_SystemLogs(t *testing.T) {
	f := newFixture(t, Config{}, fakeHistory{})
	rec := f.do(http.MethodGet, "/api/system/logs", "")
	body := rec.Body.String()
	for _, want := range []string{"Status: OFFLINE", "Balance: 10000.00", "cycle complete"} {
		if !strings.Contains(body, want) {
			t.Errorf("system logs missing %q:\n%s", want, body)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, Config{APIKey: "k"}, fakeHistory{})
	f.do(http.MethodGet, "/api/health", "")
	rec := f.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`fxbot_http_requests_total{code="200",route="GET /api/health"}`)) {
		t.Error("http request counter not exported for the health route")
	}
}
