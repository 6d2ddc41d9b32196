package guard

import "time"

// MarketSchedule describes the weekly FX session and the daily rollover
// window, all in UTC minutes of the day.
type MarketSchedule struct {
	FridayClose   int // close on Friday from this minute
	SundayOpen    int // open on Sunday from this minute
	RolloverStart int
	RolloverEnd   int
}

// DefaultSchedule closes Friday 21:50, reopens Sunday 22:05 and blocks the
// 21:50–22:10 rollover every day.
func DefaultSchedule() MarketSchedule {
	return MarketSchedule{
		FridayClose:   21*60 + 50,
		SundayOpen:    22*60 + 5,
		RolloverStart: 21*60 + 50,
		RolloverEnd:   22*60 + 10,
	}
}

// Open reports whether new entries are allowed at now. reason names the
// closure when it is not.
func (s MarketSchedule) Open(now time.Time) (bool, string) {
	t := now.UTC()
	minute := t.Hour()*60 + t.Minute()

	switch t.Weekday() {
	case time.Saturday:
		return false, "weekend"
	case time.Friday:
		if minute >= s.FridayClose {
			return false, "weekend"
		}
	case time.Sunday:
		if minute < s.SundayOpen {
			return false, "weekend"
		}
	}
	if minute >= s.RolloverStart && minute < s.RolloverEnd {
		return false, "rollover"
	}
	return true, ""
}
