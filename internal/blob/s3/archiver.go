package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// multipartThreshold switches archive uploads to the transfer manager.
const multipartThreshold = 16 << 20

// Archiver exports one UTC day of the journal (trades and signal
// decisions) to newline-delimited JSON. Records stay in the primary store.
type Archiver struct {
	writer  domain.BlobWriter
	journal domain.Journal
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, journal domain.Journal, logger *slog.Logger) *Archiver {
	return &Archiver{writer: writer, journal: journal, logger: logger.With(slog.String("component", "archiver"))}
}

// ArchiveDay uploads archive/trades/<day>.jsonl and
// archive/signals/<day>.jsonl and returns how many records were written.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	until := from.Add(24*time.Hour - time.Nanosecond)
	opts := domain.ListOpts{Since: &from, Until: &until}

	total := 0
	if a.journal.Trades != nil {
		trades, err := a.journal.Trades.List(ctx, opts)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades query: %w", err)
		}
		n, err := upload(ctx, a, "trades", from, trades)
		if err != nil {
			return total, err
		}
		total += n
	}
	if a.journal.Signals != nil {
		signals, err := a.journal.Signals.List(ctx, opts)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive signals query: %w", err)
		}
		n, err := upload(ctx, a, "signals", from, signals)
		if err != nil {
			return total, err
		}
		total += n
	}

	if a.journal.Audit != nil {
		if err := a.journal.Audit.Log(ctx, "archive", map[string]any{
			"day":   from.Format(time.DateOnly),
			"count": total,
		}); err != nil {
			a.logger.Warn("archive audit failed", slog.String("error", err.Error()))
		}
	}
	return total, nil
}

func upload[T any](ctx context.Context, a *Archiver, kind string, day time.Time, records []T) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}
	n := len(records)
	path := ArchivePath(kind, day)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}
	a.logger.Info("journal archived", slog.String("path", path), slog.Int("records", n))
	return n, nil
}

// RunDaily archives the previous UTC day shortly after each midnight until
// ctx is cancelled.
func (a *Archiver) RunDaily(ctx context.Context) error {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 5, 0, 0, time.UTC)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, err := a.ArchiveDay(ctx, next.Add(-24*time.Hour)); err != nil {
			a.logger.Error("archive failed", slog.String("error", err.Error()))
		}
	}
}

// ArchivePath is the key of one day's archive of kind.
//
//	archive/trades/2026-03-04.jsonl
func ArchivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.UTC().Format(time.DateOnly))
}

// marshalJSONL encodes records one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
