package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// NewsCache stores the last fetched calendar.
type NewsCache interface {
	Store(ctx context.Context, events []NewsEvent, ttl time.Duration) error
	Load(ctx context.Context) ([]NewsEvent, error)
}

// Bus channels.
const (
	ChannelTrades  = "fx:trades"
	ChannelSignals = "fx:signals"
	ChannelRisk    = "fx:risk"
	ChannelCycle   = "fx:cycle"
)
