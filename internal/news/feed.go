// Package news keeps the economic calendar fresh for the blackout gate.
package news

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Fetcher downloads the current calendar.
type Fetcher interface {
	Fetch(ctx context.Context) ([]domain.NewsEvent, error)
}

// Config configures a Feed.
type Config struct {
	Refresh time.Duration
	// Window keeps events that ended less than Window ago, so the blackout
	// after a release still applies.
	Window time.Duration
}

// Feed implements domain.NewsFeed. It refetches at most once per Refresh
// and, when a fetch fails, serves the last known calendar from memory or
// from the shared cache. It never blocks trading on a failed fetch: the
// worst case is an empty list.
type Feed struct {
	fetcher Fetcher
	cache   domain.NewsCache
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	events    []domain.NewsEvent
	fetchedAt time.Time
	failedAt  time.Time
}

// NewFeed creates a feed. cache may be nil.
func NewFeed(fetcher Fetcher, cache domain.NewsCache, cfg Config, logger *slog.Logger) *Feed {
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Hour
	}
	return &Feed{
		fetcher: fetcher,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "news")),
		now:     time.Now,
	}
}

// UpcomingHighImpactEvents implements domain.NewsFeed.
func (f *Feed) UpcomingHighImpactEvents(ctx context.Context) []domain.NewsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if f.stale(now) {
		f.refresh(ctx, now)
	}

	cutoff := now.Add(-f.cfg.Window)
	out := make([]domain.NewsEvent, 0, len(f.events))
	for _, ev := range f.events {
		if !ev.Time.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

func (f *Feed) stale(now time.Time) bool {
	if now.Sub(f.fetchedAt) < f.cfg.Refresh {
		return false
	}
	// Back off to a tenth of the refresh period after a failure.
	return f.failedAt.IsZero() || now.Sub(f.failedAt) >= f.cfg.Refresh/10
}

func (f *Feed) refresh(ctx context.Context, now time.Time) {
	events, err := f.fetcher.Fetch(ctx)
	if err == nil {
		f.events = events
		f.fetchedAt = now
		f.failedAt = time.Time{}
		f.logger.Info("calendar refreshed", slog.Int("events", len(events)))
		if f.cache != nil {
			if cerr := f.cache.Store(ctx, events, 2*f.cfg.Refresh); cerr != nil {
				f.logger.Warn("calendar cache store failed", slog.String("error", cerr.Error()))
			}
		}
		return
	}

	f.failedAt = now
	f.logger.Warn("calendar fetch failed", slog.String("error", err.Error()))
	if len(f.events) > 0 || f.cache == nil {
		return
	}
	cached, cerr := f.cache.Load(ctx)
	if cerr != nil {
		f.logger.Warn("calendar cache load failed", slog.String("error", cerr.Error()))
		return
	}
	f.events = cached
	f.logger.Info("calendar served from cache", slog.Int("events", len(cached)))
}

// Static is a fixed calendar.
type Static []domain.NewsEvent

// UpcomingHighImpactEvents implements domain.NewsFeed.
func (s Static) UpcomingHighImpactEvents(context.Context) []domain.NewsEvent { return s }
