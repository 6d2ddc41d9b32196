package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func TestNotifier_FilterAndFlush(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, []string{"trade", " kill_switch "}, 8, discardLogger())

	ctx := context.Background()
	n.Notify(ctx, "trade", "opened", "EURUSD")
	n.Notify(ctx, "heartbeat", "ignored", "")
	n.Notify(ctx, "kill_switch", "tripped", "")

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := n.Run(runCtx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.sent()
	if len(got) != 2 || got[0] != "opened" || got[1] != "tripped" {
		t.Fatalf("sent = %v, want [opened tripped]", got)
	}
}

func TestNotifier_DropsWhenQueueFull(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, nil, 1, discardLogger())

	ctx := context.Background()
	n.Notify(ctx, "trade", "first", "")
	n.Notify(ctx, "trade", "second", "")

	if len(n.queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(n.queue))
	}
	n.flush()
	if got := rec.sent(); len(got) != 1 || got[0] != "first" {
		t.Fatalf("sent = %v, want [first]", got)
	}
}

func TestNotifier_NoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, 4, discardLogger())
	if n.Enabled() {
		t.Fatal("Enabled() = true with no senders")
	}
	n.Notify(context.Background(), "trade", "x", "y")
	if len(n.queue) != 0 {
		t.Fatalf("queue length = %d, want 0", len(n.queue))
	}
}

func TestNotifier_BroadcastCollectsErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, nil, 4, discardLogger())

	err := n.Broadcast(context.Background(), "title", "msg")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Fatalf("Broadcast error = %v, want bad: boom", err)
	}
	if len(ok.sent()) != 1 {
		t.Fatal("healthy sender was skipped after a failure")
	}
}

func TestDiscordSender_Send(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		content = body["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "Kill switch", strings.Repeat("x", 3000)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(content, "**Kill switch**\n") {
		t.Errorf("content prefix = %q", content[:20])
	}
	if n := len([]rune(content)); n != discordLimit {
		t.Errorf("content runes = %d, want %d", n, discordLimit)
	}
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("Send error = %v, want status 429", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"toolong", 4, "too…"},
		{"ééééé", 3, "éé…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

// fakeTelegram serves getUpdates once with the given updates and records
// every sendMessage text.
type fakeTelegram struct {
	mu      sync.Mutex
	updates string
	served  bool
	texts   []string
}

func (f *fakeTelegram) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if f.served {
				_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
				return
			}
			f.served = true
			_, _ = io.WriteString(w, f.updates)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode sendMessage: %v", err)
			}
			f.texts = append(f.texts, body["text"])
			_, _ = io.WriteString(w, `{"ok":true}`)
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newTestSender(url string) *TelegramSender {
	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = url
	return s
}

func TestTelegramSender_SendEscapes(t *testing.T) {
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	if err := newTestSender(srv.URL).Send(context.Background(), "Trade", "XAU_USD *filled*"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := fake.sent()
	if len(got) != 1 || got[0] != "*Trade*\nXAU\\_USD \\*filled\\*" {
		t.Fatalf("sent = %q", got)
	}
}

func TestTelegramSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	err := newTestSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("Send error = %v, want chat not found", err)
	}
}

func TestTelegramBot_Commands(t *testing.T) {
	fake := &fakeTelegram{updates: `{"ok":true,"result":[
		{"update_id":10,"message":{"text":"/status","chat":{"id":42}}},
		{"update_id":11,"message":{"text":"/status","chat":{"id":7}}},
		{"update_id":12,"message":{"text":"hello","chat":{"id":42}}},
		{"update_id":13,"message":{"text":"/Balance@fxbot now","chat":{"id":42}}},
		{"update_id":14,"message":{"text":"/nope","chat":{"id":42}}}
	]}`}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	bot := NewTelegramBot(newTestSender(srv.URL), discardLogger())
	bot.Handle("status", func(context.Context, string) string { return "running" })
	bot.Handle("/balance", func(_ context.Context, args string) string { return "balance " + args })

	if err := bot.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if bot.offset != 15 {
		t.Errorf("offset = %d, want 15", bot.offset)
	}

	got := fake.sent()
	want := []string{"running", "balance now", "Commands: /balance /status"}
	if len(got) != len(want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTelegramBot_RunStopsOnCancel(t *testing.T) {
	fake := &fakeTelegram{updates: `{"ok":true,"result":[]}`}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	bot := NewTelegramBot(newTestSender(srv.URL), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
