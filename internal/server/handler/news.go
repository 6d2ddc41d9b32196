package handler

import (
	"net/http"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// NewsHandler lists upcoming high-impact calendar events.
type NewsHandler struct {
	feed domain.NewsFeed
}

// NewNewsHandler creates a NewsHandler.
func NewNewsHandler(feed domain.NewsFeed) *NewsHandler {
	return &NewsHandler{feed: feed}
}

// List returns the events currently known to the feed.
// GET /api/news
func (h *NewsHandler) List(w http.ResponseWriter, r *http.Request) {
	events := h.feed.UpcomingHighImpactEvents(r.Context())
	if events == nil {
		events = []domain.NewsEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
