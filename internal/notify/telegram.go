package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers notifications via the Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "[", `\[`, "`", "\\`")

// Send posts "*title*\nmessage" in legacy Markdown with the body escaped.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return t.send(ctx, fmt.Sprintf("*%s*\n%s", markdownEscaper.Replace(title), markdownEscaper.Replace(message)))
}

func (t *TelegramSender) send(ctx context.Context, text string) error {
	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	err := t.call(ctx, t.client, "sendMessage", map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}, &out)
	if err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("telegram: sendMessage: %s", out.Description)
	}
	return nil
}

func (t *TelegramSender) call(ctx context.Context, client *http.Client, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: %s: unexpected status %d: %s", method, resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("telegram: %s: decode: %w", method, err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

// CommandHandler answers one bot command. args is the text after the command.
type CommandHandler func(ctx context.Context, args string) string

// TelegramBot long-polls getUpdates and answers commands sent from the
// configured chat. Messages from any other chat are ignored.
type TelegramBot struct {
	sender      *TelegramSender
	handlers    map[string]CommandHandler
	pollTimeout time.Duration
	client      *http.Client
	logger      *slog.Logger
	offset      int64
}

// NewTelegramBot creates a bot replying through sender.
func NewTelegramBot(sender *TelegramSender, logger *slog.Logger) *TelegramBot {
	poll := 30 * time.Second
	return &TelegramBot{
		sender:      sender,
		handlers:    make(map[string]CommandHandler),
		pollTimeout: poll,
		client:      &http.Client{Timeout: poll + 10*time.Second},
		logger:      logger.With(slog.String("component", "telegram_bot")),
	}
}

// Handle registers h for "/name".
func (b *TelegramBot) Handle(name string, h CommandHandler) {
	b.handlers[strings.TrimPrefix(strings.ToLower(name), "/")] = h
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Run polls until ctx is cancelled. Poll failures back off for five seconds.
func (b *TelegramBot) Run(ctx context.Context) error {
	b.logger.Info("telegram command polling started", slog.Int("commands", len(b.handlers)))
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := b.poll(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn("getUpdates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (b *TelegramBot) poll(ctx context.Context) error {
	var out struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	err := b.sender.call(ctx, b.client, "getUpdates", map[string]any{
		"offset":          b.offset,
		"timeout":         int(b.pollTimeout.Seconds()),
		"allowed_updates": []string{"message"},
	}, &out)
	if err != nil {
		return err
	}
	for _, u := range out.Result {
		b.offset = u.UpdateID + 1
		if u.Message == nil || strconv.FormatInt(u.Message.Chat.ID, 10) != b.sender.chatID {
			continue
		}
		if reply, ok := b.dispatch(ctx, u.Message.Text); ok {
			if err := b.sender.send(ctx, markdownEscaper.Replace(reply)); err != nil {
				b.logger.Warn("command reply failed", slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// dispatch maps "/cmd@bot args" to its handler. Unknown commands get the
// command list; plain text is ignored.
func (b *TelegramBot) dispatch(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd, args, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	h, ok := b.handlers[strings.ToLower(cmd)]
	if !ok {
		names := make([]string, 0, len(b.handlers))
		for n := range b.handlers {
			names = append(names, "/"+n)
		}
		sort.Strings(names)
		return "Commands: " + strings.Join(names, " "), true
	}
	return h(ctx, strings.TrimSpace(args)), true
}
