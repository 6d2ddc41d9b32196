package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps each durable stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus with Redis Pub/Sub. Channels listed
// as durable are also appended to a capped stream so late subscribers can
// replay recent events.
type SignalBus struct {
	c       *Client
	durable map[string]bool
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client, durable ...string) *SignalBus {
	d := make(map[string]bool, len(durable))
	for _, ch := range durable {
		d[ch] = true
	}
	return &SignalBus{c: c, durable: d}
}

// Publish sends payload to channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	if !sb.durable[channel] {
		return nil
	}
	err := sb.c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: sb.c.key("stream", channel),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads that is closed when ctx ends.
// Channel names with glob characters use PSUBSCRIBE.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.c.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.c.rdb.Subscribe(ctx, channel)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Recent returns up to n of the newest payloads of a durable channel,
// oldest first.
func (sb *SignalBus) Recent(ctx context.Context, channel string, n int64) ([][]byte, error) {
	msgs, err := sb.c.rdb.XRevRangeN(ctx, sb.c.key("stream", channel), "+", "-", n).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", channel, err)
	}
	out := make([][]byte, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		switch v := msgs[i].Values["payload"].(type) {
		case string:
			out = append(out, []byte(v))
		case []byte:
			out = append(out, v)
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
