package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NewsCache implements domain.NewsCache as one JSON value with a TTL.
type NewsCache struct {
	c *Client
}

// NewNewsCache creates a NewsCache backed by the given Client.
func NewNewsCache(c *Client) *NewsCache {
	return &NewsCache{c: c}
}

// Store replaces the cached calendar.
func (nc *NewsCache) Store(ctx context.Context, events []domain.NewsEvent, ttl time.Duration) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("redis: marshal calendar: %w", err)
	}
	if err := nc.c.rdb.Set(ctx, nc.c.key("news", "calendar"), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: store calendar: %w", err)
	}
	return nil
}

// Load returns the cached calendar or domain.ErrNotFound.
func (nc *NewsCache) Load(ctx context.Context) ([]domain.NewsEvent, error) {
	data, err := nc.c.rdb.Get(ctx, nc.c.key("news", "calendar")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load calendar: %w", err)
	}
	var events []domain.NewsEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("redis: decode calendar: %w", err)
	}
	return events, nil
}

var _ domain.NewsCache = (*NewsCache)(nil)
