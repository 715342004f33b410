package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/model"
	"calgrid/internal/timegrid"
)

func hm(d, hour, minute int) time.Time {
	return time.Date(2024, 1, d, hour, minute, 0, 0, time.UTC)
}

func occ(id string, start, end time.Time) model.Occurrence {
	return model.LiteralOf(model.CalendarEvent{ID: id, Title: id, Start: start, End: end})
}

func TestLayout_Geometry(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		top        float64
		height     float64
	}{
		{"one hour", hm(1, 9, 0), hm(1, 10, 0), 540, 60},
		{"afternoon", hm(1, 14, 30), hm(1, 16, 0), 870, 90},
		{"short is padded", hm(1, 9, 0), hm(1, 9, 10), 540, MinBlockHeight},
		{"ends next day", hm(1, 23, 0), hm(2, 1, 0), 1380, 60},
		{"ends at midnight", hm(1, 22, 0), hm(2, 0, 0), 1320, 120},
		{"late short block", hm(1, 23, 50), hm(2, 0, 0), 1430, MinBlockHeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := Layout(hm(1, 0, 0), []model.Occurrence{occ("a", tt.start, tt.end)})
			require.Len(t, blocks, 1)
			assert.Equal(t, tt.top, blocks[0].Top)
			assert.Equal(t, tt.height, blocks[0].Height)
		})
	}
}

func TestLayout_Invariant(t *testing.T) {
	var all []model.Occurrence
	for m := 0; m < timegrid.MinutesPerDay; m += 37 {
		start := hm(1, 0, m)
		all = append(all, occ("x", start, start.Add(time.Duration(m%90+1)*time.Minute)))
	}
	for _, b := range Layout(hm(1, 0, 0), all) {
		assert.Equal(t, float64(timegrid.MinuteOfDay(b.Occurrence.Start)), b.Top)
		assert.GreaterOrEqual(t, b.Height, MinBlockHeight)
	}
}

func TestLayout_OnlyStartDay(t *testing.T) {
	blocks := Layout(hm(2, 0, 0), []model.Occurrence{
		occ("spans", hm(1, 23, 0), hm(2, 1, 0)),
		occ("today", hm(2, 8, 0), hm(2, 9, 0)),
	})
	require.Len(t, blocks, 1)
	assert.Equal(t, "today", blocks[0].Key.SourceID)
}

func TestColumns_StackingAndHitTest(t *testing.T) {
	days := timegrid.Days(model.Window{Start: hm(1, 0, 0), End: hm(3, 0, 0)})
	cols := timegrid.EvenColumns(days, 0, 100, 200)

	laid := Columns(cols, []model.Occurrence{
		occ("late", hm(1, 9, 30), hm(1, 11, 0)),
		occ("early", hm(1, 9, 0), hm(1, 10, 0)),
		occ("tuesday", hm(2, 12, 0), hm(2, 13, 0)),
	})
	require.Len(t, laid, 2)
	require.Len(t, laid[0].Blocks, 2)
	assert.Equal(t, "early", laid[0].Blocks[0].Key.SourceID)
	assert.Equal(t, 0, laid[0].Blocks[0].Order)
	assert.Equal(t, "late", laid[0].Blocks[1].Key.SourceID)
	assert.Equal(t, 1, laid[0].Blocks[1].Order)
	require.Len(t, laid[1].Blocks, 1)

	// 09:45 is covered by both; the later one is on top.
	b, part, ok := HitTest(laid[0], 100+585, DefaultHandlePixels)
	require.True(t, ok)
	assert.Equal(t, "late", b.Key.SourceID)
	assert.Equal(t, PartBody, part)

	// 09:10 is only covered by "early".
	b, part, ok = HitTest(laid[0], 100+550, DefaultHandlePixels)
	require.True(t, ok)
	assert.Equal(t, "early", b.Key.SourceID)
	assert.Equal(t, PartBody, part)

	_, part, ok = HitTest(laid[0], 100+570+2, DefaultHandlePixels)
	require.True(t, ok)
	assert.Equal(t, PartTopHandle, part)

	_, part, ok = HitTest(laid[0], 100+660-2, DefaultHandlePixels)
	require.True(t, ok)
	assert.Equal(t, PartBottomHandle, part)

	_, _, ok = HitTest(laid[0], 100+700, DefaultHandlePixels)
	assert.False(t, ok)

	found, ok := laid[1].Find(model.OccurrenceKey{SourceID: "tuesday"})
	require.True(t, ok)
	assert.Equal(t, 720.0, found.Top)
	assert.Len(t, DayColumns(laid), 2)
}
