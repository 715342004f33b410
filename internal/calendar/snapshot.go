package calendar

import (
	"time"

	"calgrid/internal/interaction"
	"calgrid/internal/layout"
	"calgrid/internal/model"
)

// Snapshot is the render state of a Calendar, shaped for JSON.
type Snapshot struct {
	View      model.ViewMode     `json:"view"`
	Window    model.Window       `json:"window"`
	State     string             `json:"state"`
	Selection *model.Window      `json:"selection,omitempty"`
	QuickAdd  *interaction.Draft `json:"quickAdd,omitempty"`
	FormError string             `json:"formError,omitempty"`
	Columns   []ColumnView       `json:"columns"`
	Detail    *OccurrenceView    `json:"detail,omitempty"`
	Notice    string             `json:"notice,omitempty"`
	Degraded  []string           `json:"degraded,omitempty"`
	InFlight  int                `json:"inFlight"`
}

// ColumnView is one day column with its blocks.
type ColumnView struct {
	Date   time.Time        `json:"date"`
	Left   float64          `json:"left"`
	Top    float64          `json:"top"`
	Width  float64          `json:"width"`
	Blocks []OccurrenceView `json:"blocks"`
}

// OccurrenceView is one rendered occurrence.
type OccurrenceView struct {
	Key       model.OccurrenceKey `json:"key"`
	Title     string              `json:"title"`
	Type      model.EventType     `json:"type"`
	Color     string              `json:"color"`
	Start     time.Time           `json:"start"`
	End       time.Time           `json:"end"`
	Generated bool                `json:"generated,omitempty"`
	Pending   bool                `json:"pending,omitempty"`
	Top       float64             `json:"top"`
	Height    float64             `json:"height"`
	Order     int                 `json:"order"`
}

func viewOf(o model.Occurrence) OccurrenceView {
	return OccurrenceView{
		Key:       o.Key(),
		Title:     o.Source.Title,
		Type:      o.Source.Type,
		Color:     o.Source.DisplayColor(),
		Start:     o.Start,
		End:       o.End,
		Generated: o.IsGenerated(),
		Pending:   interaction.IsPending(o.SourceID()),
	}
}

func blockView(b layout.Block) OccurrenceView {
	v := viewOf(b.Occurrence)
	v.Top, v.Height, v.Order = b.Top, b.Height, b.Order
	return v
}

// Snapshot captures the current render state.
func (c *Calendar) Snapshot() Snapshot {
	s := Snapshot{
		View:     c.view,
		Window:   c.Window(),
		State:    c.ctrl.State().Kind.String(),
		Notice:   c.notice,
		Degraded: c.degraded,
		InFlight: c.ctrl.InFlight(),
		Columns:  make([]ColumnView, 0, len(c.columns)),
	}
	if sel, ok := c.ctrl.Selection(); ok {
		s.Selection = &sel
	}
	if d, ok := c.ctrl.QuickAdd(); ok {
		s.QuickAdd = &d
	}
	if c.formErr != nil {
		s.FormError = c.formErr.Error()
	}
	if c.detail != nil {
		v := viewOf(*c.detail)
		s.Detail = &v
	}
	for _, col := range c.columns {
		cv := ColumnView{
			Date:   col.Date,
			Left:   col.Left,
			Top:    col.Top,
			Width:  col.Width,
			Blocks: make([]OccurrenceView, 0, len(col.Blocks)),
		}
		for _, b := range col.Blocks {
			cv.Blocks = append(cv.Blocks, blockView(b))
		}
		s.Columns = append(s.Columns, cv)
	}
	return s
}
