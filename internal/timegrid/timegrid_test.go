package timegrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/model"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func TestMinuteOfDay(t *testing.T) {
	assert.Equal(t, 0, MinuteOfDay(at(0, 0)))
	assert.Equal(t, 14*60+30, MinuteOfDay(at(14, 30)))
	assert.Equal(t, 1439, MinuteOfDay(at(23, 59)))
}

func TestPixelOffset(t *testing.T) {
	assert.Equal(t, 0.0, PixelOffset(0))
	assert.Equal(t, 60.0, PixelOffset(60))
	assert.Equal(t, 810.0, PixelOffset(810))
}

func TestSnap(t *testing.T) {
	tests := []struct {
		name        string
		in          time.Time
		granularity int
		want        time.Time
	}{
		{"already aligned", at(13, 15), 15, at(13, 15)},
		{"rounds down", at(13, 7), 15, at(13, 0)},
		{"half rounds up", time.Date(2024, 1, 1, 13, 7, 30, 0, time.UTC), 15, at(13, 15)},
		{"rounds up", at(13, 8), 15, at(13, 15)},
		{"hour granularity", at(14, 29), 60, at(14, 0)},
		{"hour granularity up", at(14, 30), 60, at(15, 0)},
		{"end of day rolls over", at(23, 55), 15, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Snap(tt.in, tt.granularity).Equal(tt.want), "got %s", Snap(tt.in, tt.granularity))
		})
	}
}

func TestWindowFor(t *testing.T) {
	wed := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)

	day := WindowFor(model.ViewDay, wed, time.Monday)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), day.Start)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), day.End)

	week := WindowFor(model.ViewWeek, wed, time.Monday)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), week.Start)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), week.End)

	sundayWeek := WindowFor(model.ViewWeek, wed, time.Sunday)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), sundayWeek.Start)

	month := WindowFor(model.ViewMonth, wed, time.Monday)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), month.Start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), month.End)

	assert.Len(t, Days(week), 7)
	assert.Len(t, Days(month), 31)
}

func TestDayColumn(t *testing.T) {
	cols := EvenColumns(Days(WindowFor(model.ViewWeek, at(9, 0), time.Monday)), 50, 10, 100)
	require.Len(t, cols, 7)

	i, ok := ColumnAt(cols, 175)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = ColumnAt(cols, 10)
	assert.False(t, ok)
	_, ok = ColumnAt(cols, 750)
	assert.False(t, ok)

	col := cols[1]
	assert.Equal(t, 14*60+20, col.MinuteAt(10+14*60+20.5))
	assert.Equal(t, 0, col.MinuteAt(-40))
	assert.Equal(t, 1439, col.MinuteAt(5000))
	assert.Equal(t, time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC), col.CellStart(10+14*60+45, CellMinutes))
	assert.Equal(t, time.Date(2024, 1, 2, 14, 20, 0, 0, time.UTC), col.TimeAt(10+14*60+20))
}

func TestSameDay(t *testing.T) {
	assert.True(t, SameDay(at(0, 0), at(23, 59)))
	assert.False(t, SameDay(at(0, 0), at(0, 0).AddDate(0, 0, 1)))
}
