package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// CandleSource supplies the bars drawn behind an entry.
type CandleSource interface {
	GetRecentCandles(ctx context.Context, symbol string, count int) ([]domain.Candle, error)
	GetSymbolProperties(ctx context.Context, symbol string) (domain.SymbolProperties, error)
}

// Publisher renders a trade chart and uploads it. It satisfies the
// executor's snapshot hook.
type Publisher struct {
	candles CandleSource
	blobs   domain.BlobWriter
	count   int
	logger  *slog.Logger
}

// NewPublisher creates a publisher drawing count candles.
func NewPublisher(candles CandleSource, blobs domain.BlobWriter, count int, logger *slog.Logger) *Publisher {
	if count <= 0 {
		count = 80
	}
	return &Publisher{
		candles: candles,
		blobs:   blobs,
		count:   count,
		logger:  logger.With(slog.String("component", "snapshot")),
	}
}

// Key is the object key of a trade's snapshot.
func Key(symbol string, ticket int64) string {
	return "snapshots/" + symbol + "/" + strconv.FormatInt(ticket, 10) + ".svg"
}

// Publish renders t and returns the uploaded key.
func (p *Publisher) Publish(ctx context.Context, t domain.TradeRecord) (string, error) {
	candles, err := p.candles.GetRecentCandles(ctx, t.Symbol, p.count)
	if err != nil {
		return "", fmt.Errorf("snapshot: candles %s: %w", t.Symbol, err)
	}
	digits := 5
	if props, err := p.candles.GetSymbolProperties(ctx, t.Symbol); err == nil {
		digits = props.Digits
	}

	var buf bytes.Buffer
	err = Render(&buf, Chart{
		Title:      fmt.Sprintf("%s %s %.2f @ %s  #%d  %s", t.Symbol, t.Side, t.Volume, strconv.FormatFloat(t.Price, 'f', digits, 64), t.Ticket, t.Reason),
		Candles:    candles,
		Entry:      t.Price,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
		Digits:     digits,
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: render: %w", err)
	}

	key := Key(t.Symbol, t.Ticket)
	if err := p.blobs.Put(ctx, key, &buf, "image/svg+xml"); err != nil {
		return "", fmt.Errorf("snapshot: upload %s: %w", key, err)
	}
	p.logger.Info("snapshot uploaded", slog.String("key", key))
	return key, nil
}
