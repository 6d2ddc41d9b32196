// Package forexfactory fetches the weekly economic calendar XML published
// by faireconomy.media.
package forexfactory

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// DefaultURL is the this-week calendar feed.
const DefaultURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.xml"

// dateLayout matches "02-18-2026 10:00am".
const dateLayout = "01-02-2006 3:04pm"

// Config configures the calendar client.
type Config struct {
	URL     string
	Timeout time.Duration
	// Location is the timezone the feed's wall-clock times are in.
	Location *time.Location
	// Impacts filters events, e.g. {"High"}. Empty keeps every impact.
	Impacts []string
}

// Client downloads and parses the calendar.
type Client struct {
	url        string
	loc        *time.Location
	impacts    map[string]bool
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a calendar client.
func New(cfg Config, logger *slog.Logger) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	impacts := make(map[string]bool, len(cfg.Impacts))
	for _, i := range cfg.Impacts {
		impacts[strings.ToLower(strings.TrimSpace(i))] = true
	}
	return &Client{
		url:        url,
		loc:        loc,
		impacts:    impacts,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "forexfactory")),
	}
}

// Fetch downloads the calendar and returns the matching events in UTC,
// ordered by time.
func (c *Client) Fetch(ctx context.Context) ([]domain.NewsEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("forexfactory: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; fxbot)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forexfactory: fetch: %w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("forexfactory: %w", domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("forexfactory: status %d: %w", resp.StatusCode, domain.ErrUnavailable)
	}

	events, skipped, err := Parse(io.LimitReader(resp.Body, 4<<20), c.loc, c.impacts)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("calendar parsed", slog.Int("events", len(events)), slog.Int("skipped", skipped))
	return events, nil
}

type calendarXML struct {
	Events []eventXML `xml:"event"`
}

type eventXML struct {
	Title   string `xml:"title"`
	Country string `xml:"country"`
	Date    string `xml:"date"`
	Time    string `xml:"time"`
	Impact  string `xml:"impact"`
}

// Parse decodes calendar XML. Events without a clock time ("All Day",
// "Tentative") or with an impact not in impacts are skipped and counted.
func Parse(r io.Reader, loc *time.Location, impacts map[string]bool) ([]domain.NewsEvent, int, error) {
	var cal calendarXML
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	if err := dec.Decode(&cal); err != nil {
		return nil, 0, fmt.Errorf("forexfactory: decode: %w", err)
	}

	out := make([]domain.NewsEvent, 0, len(cal.Events))
	skipped := 0
	for _, e := range cal.Events {
		impact := strings.TrimSpace(e.Impact)
		if len(impacts) > 0 && !impacts[strings.ToLower(impact)] {
			skipped++
			continue
		}
		at, err := time.ParseInLocation(dateLayout,
			strings.TrimSpace(e.Date)+" "+strings.ToLower(strings.TrimSpace(e.Time)), loc)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, domain.NewsEvent{
			Time:    at.UTC(),
			Country: strings.ToUpper(strings.TrimSpace(e.Country)),
			Title:   strings.TrimSpace(e.Title),
			Impact:  impact,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, skipped, nil
}
