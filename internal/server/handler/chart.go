package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/snapshot"
)

// ChartHandler serves trade snapshot charts from object storage.
type ChartHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewChartHandler creates a ChartHandler.
func NewChartHandler(blobs domain.BlobReader, logger *slog.Logger) *ChartHandler {
	return &ChartHandler{blobs: blobs, logger: logger.With(slog.String("handler", "chart"))}
}

// Get streams the SVG chart of one trade.
// GET /api/charts/{symbol}/{ticket}
func (h *ChartHandler) Get(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	ticket, err := strconv.ParseInt(r.PathValue("ticket"), 10, 64)
	if symbol == "" || err != nil || ticket <= 0 {
		writeError(w, http.StatusBadRequest, "symbol and numeric ticket are required")
		return
	}

	body, err := h.blobs.Get(r.Context(), snapshot.Key(symbol, ticket))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chart not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "chart fetch failed",
			slog.String("symbol", symbol),
			slog.Int64("ticket", ticket),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "object storage unavailable")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.Copy(w, body)
}
