package risk

import (
	"time"
)

// SessionWindow is one allowed trading window: a set of weekdays and a
// start/end time of day (inclusive). Windows compare against UTC.
type SessionWindow struct {
	Days  []time.Weekday
	Start string // "HH:MM"
	End   string // "HH:MM"
}

// Contains reports whether the instant falls inside the window.
func (w SessionWindow) Contains(now time.Time) bool {
	dayOK := len(w.Days) == 0
	for _, d := range w.Days {
		if now.Weekday() == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}

	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute <= end
}

// inAnySession reports whether now falls in any configured window. An
// empty configuration means trading is always allowed.
func inAnySession(windows []SessionWindow, now time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Contains(now) {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
