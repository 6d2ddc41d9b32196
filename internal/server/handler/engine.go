package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/engine"
	"github.com/alanyoungcy/fxbot/internal/executor"
)

// Engine is the operator view of the trading engine.
type Engine interface {
	Status(ctx context.Context) engine.Status
	Start(ctx context.Context) error
	Stop()
	ManualTrade(ctx context.Context, o engine.ManualOrder) (executor.Outcome, error)
}

// EngineHandler serves status, start/stop and manual trade endpoints.
type EngineHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(e Engine, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{engine: e, logger: logger.With(slog.String("handler", "engine"))}
}

// GetStatus returns the engine status.
// GET /api/status
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status(r.Context()))
}

// Start enables trading cycles.
// POST /api/bot/start
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "start failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// Stop disables trading cycles.
// POST /api/bot/stop
func (h *EngineHandler) Stop(w http.ResponseWriter, _ *http.Request) {
	h.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// Trade submits a manual order and waits for the outcome.
// POST /api/trade {"symbol":"EURUSD","side":"BUY","lot":0.5}
func (h *EngineHandler) Trade(w http.ResponseWriter, r *http.Request) {
	var o engine.ManualOrder
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(o.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	out, err := h.engine.ManualTrade(r.Context(), o)
	if err != nil {
		code := tradeStatus(err)
		if code >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "manual trade failed",
				slog.String("symbol", o.Symbol),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, code, map[string]any{"error": err.Error(), "outcome": out})
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// tradeStatus maps a manual trade error to an HTTP status.
func tradeStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrKillSwitch),
		errors.Is(err, domain.ErrCapacityFull),
		errors.Is(err, domain.ErrAlreadyReserved),
		errors.Is(err, domain.ErrMarketClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientMargin), executor.IsRejection(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SystemLogs returns a plain-text report of the status and recent logs.
// GET /api/system/logs
func (h *EngineHandler) SystemLogs(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status(r.Context())

	var b strings.Builder
	fmt.Fprintf(&b, "--- FXBOT SYSTEM REPORT ---\nGenerated: %s\n", time.Now().UTC().Format(time.RFC3339))
	state := "OFFLINE"
	if st.Running {
		state = "ONLINE"
	}
	fmt.Fprintf(&b, "Status: %s\nMode: %s\n\n--- ACCOUNT ---\n", state, st.Mode)
	if st.Account != nil {
		fmt.Fprintf(&b, "Balance: %.2f\nEquity: %.2f\n", st.Account.Balance, st.Account.Equity)
	} else {
		b.WriteString("Balance: n/a\nEquity: n/a\n")
	}
	fmt.Fprintf(&b, "Open positions: %d\nFloating P/L: %.2f\n\n--- LIVE LOGS ---\n", len(st.Positions), st.TotalProfit)
	for _, line := range st.Logs {
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="fxbot-system.log"`)
	w.Write([]byte(b.String()))
}
