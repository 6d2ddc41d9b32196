// Package guard contains the stateless entry gates: news blackout, spread
// ceiling and market schedule. Each is a pure function of its inputs.
package guard

import (
	"strings"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// NewsBlackout returns the first event whose time is within window of now
// and whose country is one of the instrument's currencies. Events with an
// empty or "ALL" country apply to every instrument.
func NewsBlackout(events []domain.NewsEvent, inst domain.Instrument, now time.Time, window time.Duration) (domain.NewsEvent, bool) {
	currencies := inst.Currencies()
	for _, ev := range events {
		if !relevant(ev.Country, currencies) {
			continue
		}
		delta := ev.Time.Sub(now)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			return ev, true
		}
	}
	return domain.NewsEvent{}, false
}

func relevant(country string, currencies []string) bool {
	c := strings.ToUpper(strings.TrimSpace(country))
	if c == "" || c == "ALL" {
		return true
	}
	for _, cur := range currencies {
		if cur == c {
			return true
		}
	}
	return false
}
