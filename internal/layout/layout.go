// Package layout turns occurrences into per-day block geometry for the
// time grid. Blocks use the full column width; overlapping blocks are
// stacked and the later one in start order is drawn on top.
package layout

import (
	"math"
	"time"

	"calgrid/internal/model"
	"calgrid/internal/timegrid"
)

// MinBlockHeight keeps very short occurrences clickable.
const MinBlockHeight = 24.0

// Block is the geometry of one occurrence within its day column. Top is
// relative to the column's 00:00. Order is the stacking position; higher
// draws on top.
type Block struct {
	Occurrence model.Occurrence    `json:"-"`
	Key        model.OccurrenceKey `json:"key"`
	Top        float64             `json:"top"`
	Height     float64             `json:"height"`
	Order      int                 `json:"order"`
}

// Bottom is the y offset of the block's lower edge.
func (b Block) Bottom() float64 {
	return b.Top + b.Height
}

// SortByStart orders occurrences for layout and list display.
func SortByStart(occ []model.Occurrence) {
	model.SortOccurrences(occ)
}

// Layout computes blocks for the occurrences that start on day. occ must
// already be sorted by start; stacking order follows it.
func Layout(day time.Time, occ []model.Occurrence) []Block {
	blocks := make([]Block, 0, len(occ))
	for _, o := range occ {
		if !timegrid.SameDay(day, o.Start) {
			continue
		}
		top, height := Geometry(day, o.Start, o.End)
		blocks = append(blocks, Block{
			Occurrence: o,
			Key:        o.Key(),
			Top:        top,
			Height:     height,
			Order:      len(blocks),
		})
	}
	return blocks
}

// Geometry returns the top offset and height of [start, end) drawn in the
// column for day. An end on a later day is clamped to the bottom of the
// column.
func Geometry(day, start, end time.Time) (top, height float64) {
	start = start.In(day.Location())
	end = end.In(day.Location())

	top = timegrid.PixelOffset(timegrid.MinuteOfDay(start))
	endMinute := timegrid.MinuteOfDay(end)
	if !timegrid.SameDay(start, end) && end.After(start) {
		endMinute = timegrid.MinutesPerDay
	}
	height = math.Max(timegrid.PixelOffset(endMinute)-top, MinBlockHeight)
	return top, height
}
