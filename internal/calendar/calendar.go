// Package calendar is one calendar engine instance. It owns the event
// store adapter, the interaction controller and the current projection,
// and advances only through Update, one message at a time.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calgrid/internal/ics"
	"calgrid/internal/interaction"
	"calgrid/internal/layout"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
	"calgrid/internal/store"
	"calgrid/internal/timegrid"
)

// Default column geometry used until the host reports measured columns.
const (
	DefaultColumnWidth = 120.0
	DefaultColumnLeft  = 0.0
	DefaultColumnTop   = 0.0
)

// Options configures a Calendar. Zero fields take their defaults.
type Options struct {
	Location  *time.Location
	WeekStart time.Weekday

	Grid   interaction.Config
	Expand ics.ExpandOptions

	ColumnLeft  float64
	ColumnTop   float64
	ColumnWidth float64
}

// Calendar is a single engine instance. It is not safe for concurrent use:
// Update must be called from one goroutine, which Loop and Drive do.
type Calendar struct {
	opts    Options
	adapter *store.Adapter
	ctrl    *interaction.Controller

	view   model.ViewMode
	anchor time.Time

	hostColumns []timegrid.DayColumn
	projection  []model.Occurrence
	degraded    []string
	columns     []layout.Column

	// applied is the sequence of the latest commit spliced in per event.
	applied map[string]int

	detail  *model.Occurrence
	notice  string
	formErr error
	closed  bool
}

func New(b store.Backend, opts Options) *Calendar {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ColumnWidth <= 0 {
		opts.ColumnWidth = DefaultColumnWidth
	}
	opts.Expand.Location = opts.Location
	return &Calendar{
		opts:    opts,
		adapter: store.NewAdapter(b),
		ctrl:    interaction.New(opts.Grid),
		view:    model.ViewWeek,
		applied: make(map[string]int),
	}
}

// Window is the visible range of the current view.
func (c *Calendar) Window() model.Window {
	if c.anchor.IsZero() {
		return model.Window{}
	}
	return timegrid.WindowFor(c.view, c.anchor.In(c.opts.Location), c.opts.WeekStart)
}

// Occurrences returns the current projection, sorted by start.
func (c *Calendar) Occurrences() []model.Occurrence {
	return c.projection
}

// Columns returns the laid-out day columns of the current projection.
func (c *Calendar) Columns() []layout.Column {
	return c.columns
}

// FormError is the validation error of the last quick-add submit.
func (c *Calendar) FormError() error {
	return c.formErr
}

func (c *Calendar) Notice() string {
	return c.notice
}

func (c *Calendar) Detail() (model.Occurrence, bool) {
	if c.detail == nil {
		return model.Occurrence{}, false
	}
	return *c.detail, true
}

func (c *Calendar) Controller() *interaction.Controller {
	return c.ctrl
}

func (c *Calendar) Events() []model.CalendarEvent {
	return c.adapter.Events()
}

// Update applies msg and returns the work it started. Every message that
// changes data or geometry is followed by a full re-projection before
// Update returns.
func (c *Calendar) Update(msg Msg) []Cmd {
	if c.closed {
		return nil
	}

	switch m := msg.(type) {
	case SetView:
		return c.setView(m)
	case SetColumns:
		c.hostColumns = m.Columns
		c.reproject()
	case Refresh:
		if c.anchor.IsZero() {
			return nil
		}
		return []Cmd{c.fetch()}
	case Unmount:
		c.ctrl.Abandon()
		c.closed = true

	case PointerDown:
		c.formErr = nil
		return c.apply(c.ctrl.PointerDown(m.Point))
	case PointerMove:
		return c.apply(c.ctrl.PointerMove(m.Point))
	case PointerUp:
		return c.apply(c.ctrl.PointerUp(m.Point))
	case Click:
		return c.apply(c.ctrl.Click(m.Point))
	case Escape:
		c.formErr = nil
		return c.apply(c.ctrl.Escape())

	case QuickAddSubmit:
		out, err := c.ctrl.SubmitQuickAdd(m.Fields)
		c.formErr = err
		if err != nil {
			return nil
		}
		return c.apply(out)
	case QuickAddCancel:
		c.formErr = nil
		c.ctrl.CancelQuickAdd()

	case UpdateEvent:
		return c.updateEvent(m)
	case DeleteOccurrence:
		return c.deleteOccurrence(m)
	case CloseDetail:
		c.detail = nil
	case DismissNotice:
		c.notice = ""

	case FetchResult:
		return c.fetched(m)
	case CommitResult:
		return c.committed(m)
	case UpdateResult:
		return c.updated(m)
	case DeleteResult:
		return c.deleted(m)

	default:
		appLog.Warn("calendar: ignoring unknown message", "type", fmt.Sprintf("%T", msg))
	}
	return nil
}

func (c *Calendar) setView(m SetView) []Cmd {
	c.ctrl.Abandon()
	c.formErr = nil
	c.detail = nil
	c.hostColumns = nil
	c.view = model.ParseViewMode(string(m.Mode))
	c.anchor = m.Anchor
	if c.anchor.IsZero() {
		c.anchor = time.Now()
	}
	c.reproject()
	return []Cmd{c.fetch()}
}

func (c *Calendar) fetch() Cmd {
	w := c.Window()
	seq := c.adapter.BeginFetch(w)
	b := c.adapter.Backend()
	return func(ctx context.Context) Msg {
		events, err := b.FetchWindow(ctx, w.Start, w.End)
		return FetchResult{Seq: seq, Events: events, Err: err}
	}
}

func (c *Calendar) fetched(m FetchResult) []Cmd {
	if c.adapter.Overtaken(m.Seq) {
		appLog.Debug("calendar: fetch overtaken by a commit; fetching again", "seq", m.Seq)
		return []Cmd{c.fetch()}
	}
	if !c.adapter.Current(m.Seq) {
		appLog.Debug("calendar: dropping stale fetch", "seq", m.Seq)
		return nil
	}
	if m.Err != nil {
		appLog.Error("calendar: window fetch failed", m.Err, "window_start", c.Window().Start)
		if !errors.Is(m.Err, context.Canceled) {
			c.notice = "Could not load events."
		}
		return nil
	}
	c.adapter.ApplyFetch(m.Seq, m.Events)
	c.reproject()
	return nil
}

// apply turns a controller outcome into commands and re-projects.
func (c *Calendar) apply(out interaction.Outcome) []Cmd {
	var cmds []Cmd
	if out.Commit != nil {
		cmds = append(cmds, c.commit(out.Commit))
	}
	if out.Refetch {
		cmds = append(cmds, c.fetch())
	}
	if out.Detail != nil {
		c.detail = out.Detail
	}
	c.reproject()
	return cmds
}

func (c *Calendar) commit(cm *interaction.Commit) Cmd {
	b := c.adapter.Backend()
	commit := *cm
	return func(ctx context.Context) Msg {
		var (
			ev  model.CalendarEvent
			err error
		)
		switch commit.Kind {
		case interaction.CommitCreate:
			ev, err = b.Create(ctx, commit.Fields)
		case interaction.CommitMove:
			ev, err = b.Move(ctx, commit.SourceID, commit.SourceStart, commit.SourceEnd)
		case interaction.CommitResize:
			ev, err = b.Update(ctx, commit.SourceID, commit.Patch)
		}
		return CommitResult{Seq: commit.Seq, Kind: commit.Kind, Event: ev, Err: err}
	}
}

func (c *Calendar) committed(m CommitResult) []Cmd {
	c.ctrl.Settle(m.Seq)

	if m.Err != nil {
		appLog.Error("calendar: commit failed; reverting", m.Err, "kind", m.Kind.String(), "seq", m.Seq)
		if m.Kind == interaction.CommitCreate {
			c.notice = "Could not create event."
		}
		c.reproject()
		return []Cmd{c.fetch()}
	}

	if seq := c.applied[m.Event.ID]; seq > m.Seq {
		// A later commit on the same event already landed; the store may
		// have applied the two in either order.
		appLog.Debug("calendar: commit result arrived out of order", "id", m.Event.ID, "seq", m.Seq, "applied", seq)
		c.reproject()
		return []Cmd{c.fetch()}
	}
	c.applied[m.Event.ID] = m.Seq
	c.adapter.Put(m.Event)
	c.reproject()
	return nil
}

func (c *Calendar) updateEvent(m UpdateEvent) []Cmd {
	ev, ok := c.adapter.Lookup(m.ID)
	if !ok {
		c.notice = "Event no longer exists."
		return nil
	}
	if m.Patch.Empty() {
		return nil
	}
	if m.Patch.Title != nil && *m.Patch.Title == "" {
		c.formErr = model.ErrEmptyTitle
		return nil
	}
	if next := m.Patch.Apply(ev); !next.End.After(next.Start) {
		c.formErr = model.ErrInvalidRange
		return nil
	}
	c.formErr = nil

	b := c.adapter.Backend()
	id, patch := m.ID, m.Patch
	return []Cmd{func(ctx context.Context) Msg {
		ev, err := b.Update(ctx, id, patch)
		return UpdateResult{ID: id, Event: ev, Err: err}
	}}
}

func (c *Calendar) updated(m UpdateResult) []Cmd {
	if m.Err != nil {
		appLog.Error("calendar: update failed", m.Err, "id", m.ID)
		c.notice = "Could not save changes."
		return []Cmd{c.fetch()}
	}
	c.adapter.Put(m.Event)
	c.reproject()
	return nil
}

func (c *Calendar) deleteOccurrence(m DeleteOccurrence) []Cmd {
	id := m.Key.SourceID
	if id == "" || interaction.IsPending(id) {
		return nil
	}
	b := c.adapter.Backend()
	return []Cmd{func(ctx context.Context) Msg {
		return DeleteResult{ID: id, Err: b.Remove(ctx, id)}
	}}
}

func (c *Calendar) deleted(m DeleteResult) []Cmd {
	if m.Err != nil && !store.NotFound(m.Err) && !errors.Is(m.Err, store.ErrNotFound) {
		appLog.Error("calendar: delete failed", m.Err, "id", m.ID)
		c.notice = "Could not delete event."
		return []Cmd{c.fetch()}
	}
	c.adapter.Delete(m.ID)
	if c.detail != nil && c.detail.SourceID() == m.ID {
		c.detail = nil
	}
	c.reproject()
	return nil
}

// reproject rebuilds occurrences and geometry from the authoritative list
// with the controller's overlays laid on top.
func (c *Calendar) reproject() {
	w := c.Window()
	if w.IsZero() {
		c.projection, c.columns = nil, nil
		c.ctrl.SetGeometry(nil)
		return
	}

	overlays := c.ctrl.Overlays()
	events := c.adapter.Events()
	for _, ov := range overlays {
		if ov.Pending != nil {
			events = append(events, *ov.Pending)
		}
	}

	res := ics.ExpandAll(events, w, c.opts.Expand)
	occ := res.Occurrences
	for _, ov := range overlays {
		if ov.Pending != nil {
			continue
		}
		for i := range occ {
			if occ[i].Key() == ov.Key {
				occ[i] = occ[i].WithInterval(ov.Start.In(c.opts.Location), ov.End.In(c.opts.Location))
			}
			// A drag that starts on a block with an unsettled commit must
			// measure its delta against the interval that commit will leave.
			if !ov.SourceStart.IsZero() && occ[i].SourceID() == ov.Key.SourceID {
				occ[i].Source.Start = ov.SourceStart
				occ[i].Source.End = ov.SourceEnd
			}
		}
	}
	layout.SortByStart(occ)

	c.projection = occ
	c.degraded = res.Degraded
	c.columns = layout.Columns(c.dayColumns(w), occ)
	c.ctrl.SetGeometry(c.columns)

	if c.detail != nil {
		c.detail = c.refreshDetail(*c.detail)
	}
}

func (c *Calendar) refreshDetail(d model.Occurrence) *model.Occurrence {
	for i := range c.projection {
		if c.projection[i].Key() == d.Key() {
			o := c.projection[i]
			return &o
		}
	}
	if _, ok := c.adapter.Lookup(d.SourceID()); ok {
		return &d
	}
	return nil
}

func (c *Calendar) dayColumns(w model.Window) []timegrid.DayColumn {
	if len(c.hostColumns) > 0 {
		return c.hostColumns
	}
	return timegrid.EvenColumns(timegrid.Days(w), c.opts.ColumnLeft, c.opts.ColumnTop, c.opts.ColumnWidth)
}
