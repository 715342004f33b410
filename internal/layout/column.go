package layout

import (
	"calgrid/internal/model"
	"calgrid/internal/timegrid"
)

// DefaultHandlePixels is the height of the resize strips at the top and
// bottom of a block.
const DefaultHandlePixels = 6.0

// Part says which region of a block a point falls on.
type Part int

const (
	PartBody Part = iota
	PartTopHandle
	PartBottomHandle
)

func (p Part) String() string {
	switch p {
	case PartTopHandle:
		return "top"
	case PartBottomHandle:
		return "bottom"
	default:
		return "body"
	}
}

// Column is one laid-out day: its on-screen geometry plus its blocks in
// stacking order.
type Column struct {
	timegrid.DayColumn
	Blocks []Block `json:"blocks"`
}

// Columns groups occurrences by the day they start on and lays out each
// column. Occurrences starting on no visible day are dropped.
func Columns(cols []timegrid.DayColumn, occ []model.Occurrence) []Column {
	sorted := make([]model.Occurrence, len(occ))
	copy(sorted, occ)
	SortByStart(sorted)

	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		out = append(out, Column{DayColumn: c, Blocks: Layout(c.Date, sorted)})
	}
	return out
}

// DayColumns strips the blocks, leaving the bare geometry.
func DayColumns(cols []Column) []timegrid.DayColumn {
	out := make([]timegrid.DayColumn, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.DayColumn)
	}
	return out
}

// HitTest returns the topmost block under y, and which part of it was hit.
// y is in grid coordinates.
func HitTest(col Column, y, handlePx float64) (Block, Part, bool) {
	if handlePx <= 0 {
		handlePx = DefaultHandlePixels
	}
	local := y - col.Top
	for i := len(col.Blocks) - 1; i >= 0; i-- {
		b := col.Blocks[i]
		if local < b.Top || local >= b.Bottom() {
			continue
		}
		switch {
		case local < b.Top+handlePx:
			return b, PartTopHandle, true
		case local >= b.Bottom()-handlePx:
			return b, PartBottomHandle, true
		default:
			return b, PartBody, true
		}
	}
	return Block{}, PartBody, false
}

// Find returns the block for key, if laid out in this column.
func (c Column) Find(key model.OccurrenceKey) (Block, bool) {
	for _, b := range c.Blocks {
		if b.Key == key {
			return b, true
		}
	}
	return Block{}, false
}
