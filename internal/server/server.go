// Package server exposes the operator HTTP API, Prometheus metrics and the
// websocket event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/server/handler"
	"github.com/alanyoungcy/fxbot/internal/server/middleware"
	"github.com/alanyoungcy/fxbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey protects every route except health and metrics. Empty disables auth.
	APIKey            string
	ManualTradeLimit  int
	ManualTradeWindow time.Duration
}

// Handlers aggregates the route handlers. Nil optional handlers leave their
// routes unregistered.
type Handlers struct {
	Health  *handler.HealthHandler
	Engine  *handler.EngineHandler
	News    *handler.NewsHandler
	Report  *handler.ReportHandler
	Journal *handler.JournalHandler
	Charts  *handler.ChartHandler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers all routes and wraps them in CORS, logging and auth
// middleware. limiter guards the manual trade route.
func New(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/status", h.Engine.GetStatus)
	mux.HandleFunc("GET /api/system/logs", h.Engine.SystemLogs)
	mux.HandleFunc("POST /api/bot/start", h.Engine.Start)
	mux.HandleFunc("POST /api/bot/stop", h.Engine.Stop)

	var trade http.Handler = http.HandlerFunc(h.Engine.Trade)
	if limiter != nil && cfg.ManualTradeLimit > 0 {
		trade = middleware.RateLimit(limiter, "trade", cfg.ManualTradeLimit, cfg.ManualTradeWindow, logger)(trade)
	}
	mux.Handle("POST /api/trade", trade)

	if h.News != nil {
		mux.HandleFunc("GET /api/news", h.News.List)
	}
	if h.Report != nil {
		mux.HandleFunc("GET /api/report", h.Report.Stats)
		mux.HandleFunc("GET /api/report/export.csv", h.Report.ExportCSV)
	}
	if h.Journal != nil {
		mux.HandleFunc("GET /api/trades", h.Journal.Trades)
		mux.HandleFunc("GET /api/signals", h.Journal.Signals)
		mux.HandleFunc("GET /api/account/snapshots", h.Journal.AccountSnapshots)
		mux.HandleFunc("GET /api/audit", h.Journal.Audit)
	}
	if h.Charts != nil {
		mux.HandleFunc("GET /api/charts/{symbol}/{ticket}", h.Charts.Get)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is cancelled, then shuts down within 10 seconds.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("listening", slog.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() { errc <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
