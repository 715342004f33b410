package timegrid

import (
	"math"
	"time"
)

// Point is a pointer position in grid pixels.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// DayColumn is the on-screen geometry of one day of the time grid. Top is
// the y coordinate of 00:00 for that column.
type DayColumn struct {
	Date  time.Time `json:"date"`
	Left  float64   `json:"left"`
	Top   float64   `json:"top"`
	Width float64   `json:"width"`
}

// Contains reports whether x falls inside the column horizontally.
func (c DayColumn) Contains(x float64) bool {
	return x >= c.Left && x < c.Left+c.Width
}

// MinuteAt converts y into a minute of the column's day, clamped to the day.
func (c DayColumn) MinuteAt(y float64) int {
	m := int(math.Floor((y - c.Top) / PixelsPerMinute))
	if m < 0 {
		return 0
	}
	if m >= MinutesPerDay {
		return MinutesPerDay - 1
	}
	return m
}

// TimeAt is the instant under y.
func (c DayColumn) TimeAt(y float64) time.Time {
	return AtMinute(c.Date, c.MinuteAt(y))
}

// CellStart is the start of the cellMinutes-sized cell under y.
func (c DayColumn) CellStart(y float64, cellMinutes int) time.Time {
	if cellMinutes <= 0 {
		cellMinutes = CellMinutes
	}
	m := c.MinuteAt(y)
	return AtMinute(c.Date, m-m%cellMinutes)
}

// ColumnAt returns the index of the column under x.
func ColumnAt(cols []DayColumn, x float64) (int, bool) {
	for i, c := range cols {
		if c.Contains(x) {
			return i, true
		}
	}
	return -1, false
}

// EvenColumns lays the given days out side by side, each width pixels wide,
// starting at left. Hosts with a real rendering layer pass measured bounds
// instead.
func EvenColumns(days []time.Time, left, top, width float64) []DayColumn {
	cols := make([]DayColumn, 0, len(days))
	for i, d := range days {
		cols = append(cols, DayColumn{
			Date:  DayStart(d),
			Left:  left + float64(i)*width,
			Top:   top,
			Width: width,
		})
	}
	return cols
}
