package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(weekday time.Weekday, hour, minute int) time.Time {
	// 2025-06-01 is a Sunday.
	base := time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(weekday-time.Sunday))
}

func TestSessionWindowContains(t *testing.T) {
	w := SessionWindow{
		Days:  []time.Weekday{time.Monday, time.Friday},
		Start: "08:00",
		End:   "17:00",
	}

	assert.True(t, w.Contains(at(time.Monday, 8, 0)), "start is inclusive")
	assert.True(t, w.Contains(at(time.Monday, 12, 30)))
	assert.True(t, w.Contains(at(time.Friday, 17, 0)), "end is inclusive")
	assert.False(t, w.Contains(at(time.Monday, 7, 59)))
	assert.False(t, w.Contains(at(time.Monday, 17, 1)))
	assert.False(t, w.Contains(at(time.Tuesday, 12, 0)), "day not listed")
}

func TestSessionWindowAllDays(t *testing.T) {
	w := SessionWindow{Start: "00:00", End: "23:59"}
	assert.True(t, w.Contains(at(time.Sunday, 0, 0)))
	assert.True(t, w.Contains(at(time.Wednesday, 23, 59)))
}

func TestSessionWindowBadClockNeverMatches(t *testing.T) {
	w := SessionWindow{Start: "late", End: "17:00"}
	assert.False(t, w.Contains(at(time.Monday, 12, 0)))
}

func TestInAnySession(t *testing.T) {
	assert.True(t, inAnySession(nil, at(time.Saturday, 3, 0)),
		"no windows means always allowed")

	windows := []SessionWindow{
		{Days: []time.Weekday{time.Monday}, Start: "08:00", End: "12:00"},
		{Days: []time.Weekday{time.Monday}, Start: "13:00", End: "17:00"},
	}
	assert.True(t, inAnySession(windows, at(time.Monday, 9, 0)))
	assert.True(t, inAnySession(windows, at(time.Monday, 14, 0)))
	assert.False(t, inAnySession(windows, at(time.Monday, 12, 30)), "lunch gap")
}
