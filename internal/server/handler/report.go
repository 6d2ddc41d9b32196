package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/report"
)

// ReportService computes performance over closed deals.
type ReportService interface {
	Window(days int) (time.Time, time.Time)
	Deals(ctx context.Context, from, to time.Time) ([]domain.Deal, error)
}

// ReportHandler serves the audit report and its CSV export.
type ReportHandler struct {
	reports ReportService
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger.With(slog.String("handler", "report"))}
}

// Stats returns performance statistics. When history is unavailable the
// response is an empty report with source "unavailable".
// GET /api/report?days=30
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	from, to := h.reports.Window(parseDays(r, 30))
	deals, err := h.reports.Deals(r.Context(), from, to)
	source := "history"
	if err != nil {
		h.logger.WarnContext(r.Context(), "report history failed", slog.String("error", err.Error()))
		deals, source = nil, "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":  report.Compute(deals, from, to),
		"source": source,
	})
}

// ExportCSV streams the closed deals as CSV.
// GET /api/report/export.csv?days=30
func (h *ReportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	from, to := h.reports.Window(parseDays(r, 30))
	deals, err := h.reports.Deals(r.Context(), from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "export history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "trade history unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="fxbot-report-%s.csv"`, to.Format("2006-01-02")))
	if err := report.WriteCSV(w, deals); err != nil {
		h.logger.WarnContext(r.Context(), "csv export interrupted", slog.String("error", err.Error()))
	}
}
