package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// JournalHandler lists persisted trades, signal decisions, account
// snapshots and audit entries.
type JournalHandler struct {
	journal domain.Journal
	logger  *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(j domain.Journal, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{journal: j, logger: logger.With(slog.String("handler", "journal"))}
}

// list runs fetch with the request's pagination and writes {key: rows}.
func list[T any](h *JournalHandler, w http.ResponseWriter, r *http.Request, key string,
	fetch func(*http.Request, domain.ListOpts) ([]T, error)) {
	rows, err := fetch(r, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "journal list failed",
			slog.String("table", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list "+key)
		return
	}
	if rows == nil {
		rows = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{key: rows})
}

// Trades handles GET /api/trades.
func (h *JournalHandler) Trades(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, "trades", func(r *http.Request, o domain.ListOpts) ([]domain.TradeRecord, error) {
		return h.journal.Trades.List(r.Context(), o)
	})
}

// Signals handles GET /api/signals.
func (h *JournalHandler) Signals(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, "signals", func(r *http.Request, o domain.ListOpts) ([]domain.SignalRecord, error) {
		return h.journal.Signals.List(r.Context(), o)
	})
}

// AccountSnapshots handles GET /api/account/snapshots.
func (h *JournalHandler) AccountSnapshots(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, "snapshots", func(r *http.Request, o domain.ListOpts) ([]domain.AccountSnapshot, error) {
		return h.journal.Snapshots.List(r.Context(), o)
	})
}

// Audit handles GET /api/audit.
func (h *JournalHandler) Audit(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, "audit", func(r *http.Request, o domain.ListOpts) ([]domain.AuditEntry, error) {
		return h.journal.Audit.List(r.Context(), o)
	})
}
