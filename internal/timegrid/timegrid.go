// Package timegrid maps wall-clock instants to time-grid coordinates: day
// columns, minute of day and vertical pixel offset. Everything here is a
// pure function of its inputs.
package timegrid

import (
	"math"
	"time"

	"calgrid/internal/model"
)

const (
	// MinutesPerDay is the height of one day column in minutes.
	MinutesPerDay = 1440
	// PixelsPerMinute is fixed: one hour is 60px tall.
	PixelsPerMinute = 1.0

	// ResizeGranularity is the snap used while dragging an edge.
	ResizeGranularity = 15
	// CellMinutes is the size of one grid cell (select and move).
	CellMinutes = 60
)

// MinuteOfDay returns the minute within t's day, in [0, 1440).
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// PixelOffset converts a minute of day to a vertical offset in pixels.
func PixelOffset(minute int) float64 {
	return float64(minute) * PixelsPerMinute
}

// DayStart returns local midnight of t's day.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AtMinute returns day's midnight plus the given minutes, in wall-clock
// terms (DST days keep their labels).
func AtMinute(day time.Time, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, minute, 0, 0, day.Location())
}

// SameDay reports whether a and b fall on the same calendar day in a's zone.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Snap rounds t to the nearest multiple of granularity minutes counted from
// local midnight. Exact halves round up.
func Snap(t time.Time, granularity int) time.Time {
	if granularity <= 1 {
		return t.Truncate(time.Minute)
	}
	day := DayStart(t)
	minutes := float64(MinuteOfDay(t)) + float64(t.Second())/60
	steps := math.Floor(minutes/float64(granularity) + 0.5)
	return AtMinute(day, int(steps)*granularity)
}

// WindowFor returns the visible window of a view anchored at the given date.
func WindowFor(mode model.ViewMode, anchor time.Time, weekStart time.Weekday) model.Window {
	day := DayStart(anchor)
	switch mode {
	case model.ViewDay:
		return model.Window{Start: day, End: day.AddDate(0, 0, 1)}
	case model.ViewMonth:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return model.Window{Start: first, End: first.AddDate(0, 1, 0)}
	default:
		back := (int(day.Weekday()) - int(weekStart) + 7) % 7
		start := day.AddDate(0, 0, -back)
		return model.Window{Start: start, End: start.AddDate(0, 0, 7)}
	}
}

// Days lists the midnights of every day in the window.
func Days(w model.Window) []time.Time {
	var out []time.Time
	for d := DayStart(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// ParseWeekStart maps "sunday" to time.Sunday and anything else to Monday.
func ParseWeekStart(s string) time.Weekday {
	if s == "sunday" {
		return time.Sunday
	}
	return time.Monday
}
