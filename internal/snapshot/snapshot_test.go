package snapshot

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

func bars(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	p := 1.1000
	for i := range out {
		o := p
		if i%2 == 0 {
			p += 0.0010
		} else {
			p -= 0.0004
		}
		out[i] = domain.Candle{Time: time.Unix(int64(i)*3600, 0), Open: o, Close: p, High: max(o, p) + 0.0002, Low: min(o, p) - 0.0002}
	}
	return out
}

func TestRender_WellFormed(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Chart{
		Title:   `EURUSD BUY <golden & cross>`,
		Candles: bars(30), Entry: 1.1050, StopLoss: 1.1000, TakeProfit: 1.1150, Digits: 5,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	dec := xml.NewDecoder(&buf)
	for {
		if _, err := dec.Token(); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("invalid SVG: %v", err)
		}
	}
	out := buf.String()
	for _, want := range []string{"ENTRY 1.10500", "SL 1.10000", "TP 1.11500", "&lt;golden &amp; cross&gt;"} {
		if !strings.Contains(out, want) {
			t.Errorf("SVG missing %q", want)
		}
	}
	if got := strings.Count(out, "<rect "); got != 31 {
		t.Errorf("rect count = %d, want 30 bodies + background", got)
	}
}

func TestRender_NoCandles(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, Chart{Entry: 2300, Digits: 2}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "ENTRY 2300.00") {
		t.Errorf("entry line missing")
	}
}

func TestScale_Flat(t *testing.T) {
	s := scale{1, 1}
	if y := s.y(1); y != float64(padTop)+float64(height-padTop-padBot)/2 {
		t.Errorf("flat y = %v", y)
	}
}

type fakeCandles struct{ err error }

func (f fakeCandles) GetRecentCandles(context.Context, string, int) ([]domain.Candle, error) {
	return bars(10), f.err
}

func (f fakeCandles) GetSymbolProperties(context.Context, string) (domain.SymbolProperties, error) {
	return domain.SymbolProperties{Digits: 3}, nil
}

type blobs struct {
	key, ctype string
	data       []byte
}

func (b *blobs) Put(_ context.Context, key string, r io.Reader, ctype string) error {
	b.key, b.ctype = key, ctype
	b.data, _ = io.ReadAll(r)
	return nil
}

func (b *blobs) PutMultipart(ctx context.Context, key string, r io.Reader, _ int64) error {
	return b.Put(ctx, key, r, "")
}

func TestPublisher_Publish(t *testing.T) {
	store := &blobs{}
	p := NewPublisher(fakeCandles{}, store, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	key, err := p.Publish(context.Background(), domain.TradeRecord{
		Ticket: 555, Symbol: "USDJPY", Side: domain.SideBuy, Volume: 0.3, Price: 150.123, StopLoss: 149.623, TakeProfit: 151.123,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if key != "snapshots/USDJPY/555.svg" || store.key != key || store.ctype != "image/svg+xml" {
		t.Errorf("key = %q, stored %q (%s)", key, store.key, store.ctype)
	}
	if !bytes.Contains(store.data, []byte("ENTRY 150.123")) {
		t.Errorf("snapshot missing entry label")
	}
}

func TestPublisher_CandleError(t *testing.T) {
	p := NewPublisher(fakeCandles{err: errors.New("down")}, &blobs{}, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := p.Publish(context.Background(), domain.TradeRecord{Symbol: "EURUSD"}); err == nil {
		t.Fatal("expected error")
	}
}
