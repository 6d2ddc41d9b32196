// Package notify delivers operator alerts to Telegram and Discord. Alerts
// are filtered by event type and queued, so a slow chat API never stalls a
// trading path.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/fxbot/internal/metrics"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type note struct {
	event, title, message string
}

// Notifier fans alerts out to its senders from a bounded queue drained by
// Run. When the queue is full the alert is dropped and counted.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan note
	timeout time.Duration
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events in events are forwarded; an
// empty list forwards everything.
func NewNotifier(senders []Sender, events []string, queueSize int, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan note, queueSize),
		timeout: 15 * time.Second,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify queues an alert if its event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}
	select {
	case n.queue <- note{event: event, title: title, message: message}:
	default:
		metrics.Notifications.WithLabelValues("queue", "dropped").Inc()
		n.logger.WarnContext(ctx, "notification queue full, dropping", slog.String("event", event))
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n.flush()
			return nil
		case msg := <-n.queue:
			n.deliver(context.Background(), msg)
		}
	}
}

func (n *Notifier) flush() {
	for {
		select {
		case msg := <-n.queue:
			n.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(parent context.Context, msg note) {
	ctx, cancel := context.WithTimeout(parent, n.timeout)
	defer cancel()
	if err := n.Broadcast(ctx, msg.title, msg.message); err != nil {
		n.logger.Warn("notification failed", slog.String("event", msg.event), slog.String("error", err.Error()))
	}
}

// Broadcast sends synchronously to every sender, ignoring the event filter.
// One failing sender does not stop delivery to the others.
func (n *Notifier) Broadcast(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			metrics.Notifications.WithLabelValues(s.Name(), "failed").Inc()
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		metrics.Notifications.WithLabelValues(s.Name(), "sent").Inc()
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
