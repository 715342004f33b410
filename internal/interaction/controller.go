// Package interaction holds the pointer state machine of the time grid:
// range-select-to-create, drag-to-move and drag-to-resize.
//
// The Controller is pure. It never blocks and performs no I/O; inputs
// return an Outcome that the owner turns into store calls, and the owner
// reports results back through Settle.
package interaction

import (
	"errors"
	"slices"
	"time"

	"calgrid/internal/layout"
	"calgrid/internal/model"
	"calgrid/internal/timegrid"
)

// ErrNoDraft is returned by SubmitQuickAdd when no range has been selected.
var ErrNoDraft = errors.New("no quick-add draft is open")

// Config tunes the controller. Zero fields take their defaults.
type Config struct {
	CellMinutes       int
	ResizeSnapMinutes int
	HandlePixels      float64
	ClickSuppress     time.Duration
	Now               func() time.Time
}

// DefaultClickSuppress is how long the click after a drag release is ignored.
const DefaultClickSuppress = 200 * time.Millisecond

func (c Config) withDefaults() Config {
	if c.CellMinutes <= 0 {
		c.CellMinutes = timegrid.CellMinutes
	}
	if c.ResizeSnapMinutes <= 0 {
		c.ResizeSnapMinutes = timegrid.ResizeGranularity
	}
	if c.HandlePixels <= 0 {
		c.HandlePixels = layout.DefaultHandlePixels
	}
	if c.ClickSuppress <= 0 {
		c.ClickSuppress = DefaultClickSuppress
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Controller is one calendar's interaction state. It is not safe for
// concurrent use; the owner serializes inputs.
type Controller struct {
	cfg  Config
	cols []layout.Column

	state State
	drag  *drag
	draft *Draft

	seq      int
	inflight map[int]Overlay

	// suppressUntil swallows the click that follows a drag release.
	suppressUntil time.Time
}

func New(cfg Config) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		inflight: make(map[int]Overlay),
	}
}

// SetGeometry replaces the laid-out columns used for hit testing.
func (c *Controller) SetGeometry(cols []layout.Column) {
	c.cols = cols
}

func (c *Controller) State() State {
	return c.state
}

// Selection returns the candidate range while RangeSelecting.
func (c *Controller) Selection() (model.Window, bool) {
	if c.state.Kind != RangeSelecting {
		return model.Window{}, false
	}
	return c.state.Candidate, true
}

// QuickAdd returns the open quick-add draft, if any.
func (c *Controller) QuickAdd() (Draft, bool) {
	if c.draft == nil {
		return Draft{}, false
	}
	return *c.draft, true
}

// Overlays lists the in-flight commits in sequence order followed by the
// preview of the drag in progress.
func (c *Controller) Overlays() []Overlay {
	out := make([]Overlay, 0, len(c.inflight)+1)
	for _, o := range c.inflight {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Overlay) int { return a.Seq - b.Seq })

	if c.drag != nil && (c.state.Kind == Moving || c.state.Kind == Resizing) {
		out = append(out, Overlay{
			Key:   c.drag.occ.Key(),
			Start: c.state.Candidate.Start,
			End:   c.state.Candidate.End,
		})
	}
	return out
}

// PointerDown starts a range selection on an empty cell, a move on a block
// body, or a resize on a block handle. A drag still in progress is
// discarded first. Blocks of creates that the store has not confirmed yet
// cannot be dragged.
func (c *Controller) PointerDown(p timegrid.Point) Outcome {
	c.discardDrag()

	ci, ok := timegrid.ColumnAt(layout.DayColumns(c.cols), p.X)
	if !ok {
		return Outcome{}
	}
	col := c.cols[ci]

	block, part, hit := layout.HitTest(col, p.Y, c.cfg.HandlePixels)
	if !hit {
		c.draft = nil
		anchor := col.CellStart(p.Y, c.cfg.CellMinutes)
		c.state = State{
			Kind:      RangeSelecting,
			Anchor:    anchor,
			Candidate: model.Window{Start: anchor, End: anchor.Add(c.cell())},
		}
		return Outcome{}
	}

	occ := block.Occurrence
	if IsPending(occ.SourceID()) {
		return Outcome{}
	}
	d := &drag{occ: occ, column: ci}
	st := State{
		Occurrence: &occ,
		Candidate:  model.Window{Start: occ.Start, End: occ.End},
	}
	switch part {
	case layout.PartTopHandle:
		st.Kind, st.Edge, d.edge = Resizing, EdgeTop, EdgeTop
	case layout.PartBottomHandle:
		st.Kind, st.Edge, d.edge = Resizing, EdgeBottom, EdgeBottom
	default:
		st.Kind = Moving
	}
	c.drag = d
	c.state = st
	return Outcome{}
}

// PointerMove updates the preview of the interaction in progress. Moves are
// applied in arrival order; the last one before PointerUp wins.
func (c *Controller) PointerMove(p timegrid.Point) Outcome {
	switch c.state.Kind {
	case RangeSelecting:
		c.moveSelection(p)
	case Moving:
		c.moveBlock(p)
	case Resizing:
		c.resizeBlock(p)
	}
	return Outcome{}
}

func (c *Controller) moveSelection(p timegrid.Point) {
	ci, ok := timegrid.ColumnAt(layout.DayColumns(c.cols), p.X)
	if !ok {
		return
	}
	cur := c.cols[ci].CellStart(p.Y, c.cfg.CellMinutes)
	start, end := c.state.Anchor, cur
	if cur.Before(start) {
		start, end = cur, c.state.Anchor
	}
	c.state.Candidate = model.Window{Start: start, End: end.Add(c.cell())}
}

func (c *Controller) moveBlock(p timegrid.Point) {
	ci, ok := timegrid.ColumnAt(layout.DayColumns(c.cols), p.X)
	if !ok {
		return
	}
	col := c.cols[ci]
	cell := col.CellStart(p.Y, c.cfg.CellMinutes)
	// Cell start plus the pointer's offset within the cell.
	start := cell.Add(col.TimeAt(p.Y).Sub(cell))
	c.state.Candidate = model.Window{Start: start, End: start.Add(c.drag.occ.Duration())}
	c.drag.moved = true
}

func (c *Controller) resizeBlock(p timegrid.Point) {
	if c.drag.column >= len(c.cols) {
		return
	}
	col := c.cols[c.drag.column]
	t := timegrid.Snap(col.TimeAt(p.Y), c.cfg.ResizeSnapMinutes)
	c.drag.moved = true

	cand := c.state.Candidate
	switch c.drag.edge {
	case EdgeBottom:
		if !t.After(cand.Start) {
			return
		}
		cand.End = t
	case EdgeTop:
		if !t.Before(cand.End) {
			return
		}
		cand.Start = t
	}
	c.state.Candidate = cand
}

// PointerUp ends the interaction in progress.
func (c *Controller) PointerUp(p timegrid.Point) Outcome {
	switch c.state.Kind {
	case RangeSelecting:
		c.draft = &Draft{Start: c.state.Candidate.Start, End: c.state.Candidate.End}
		c.state = c.restState()
		return Outcome{}
	case Moving:
		return c.releaseMove(p)
	case Resizing:
		return c.releaseResize()
	}
	return Outcome{}
}

func (c *Controller) releaseMove(p timegrid.Point) Outcome {
	d := c.drag
	cand := c.state.Candidate
	c.drag = nil
	c.state = c.restState()
	if d.moved {
		c.suppressUntil = c.cfg.Now().Add(c.cfg.ClickSuppress)
	}

	if _, ok := timegrid.ColumnAt(layout.DayColumns(c.cols), p.X); !ok {
		return Outcome{Refetch: true}
	}
	if cand.Start.Equal(d.occ.Start) && cand.End.Equal(d.occ.End) {
		return Outcome{}
	}

	delta := cand.Start.Sub(d.occ.Start)
	src := d.occ.Source
	commit := &Commit{
		Kind:        CommitMove,
		SourceID:    d.occ.SourceID(),
		Occurrence:  d.occ,
		Start:       cand.Start,
		End:         cand.End,
		SourceStart: src.Start.Add(delta),
		SourceEnd:   src.End.Add(delta),
	}
	commit.Patch = model.Patch{Start: &commit.SourceStart, End: &commit.SourceEnd}
	return c.track(commit, d.occ.Key(), nil)
}

func (c *Controller) releaseResize() Outcome {
	d := c.drag
	cand := c.state.Candidate
	c.drag = nil
	c.state = c.restState()
	if d.moved {
		c.suppressUntil = c.cfg.Now().Add(c.cfg.ClickSuppress)
	}

	if cand.Start.Equal(d.occ.Start) && cand.End.Equal(d.occ.End) {
		return Outcome{}
	}

	src := d.occ.Source
	commit := &Commit{
		Kind:        CommitResize,
		SourceID:    d.occ.SourceID(),
		Occurrence:  d.occ,
		Start:       cand.Start,
		End:         cand.End,
		SourceStart: src.Start,
		SourceEnd:   src.End,
	}
	if d.edge == EdgeTop {
		commit.SourceStart = src.Start.Add(cand.Start.Sub(d.occ.Start))
		commit.Patch = model.Patch{Start: &commit.SourceStart}
	} else {
		commit.SourceEnd = src.End.Add(cand.End.Sub(d.occ.End))
		commit.Patch = model.Patch{End: &commit.SourceEnd}
	}
	return c.track(commit, d.occ.Key(), nil)
}

// Click opens the detail view of the block under p, unless it is the click
// synthesized right after a drag release.
func (c *Controller) Click(p timegrid.Point) Outcome {
	if !c.suppressUntil.IsZero() {
		until := c.suppressUntil
		c.suppressUntil = time.Time{}
		if !c.cfg.Now().After(until) {
			return Outcome{}
		}
	}
	if c.state.Kind != Idle && c.state.Kind != Committing {
		return Outcome{}
	}

	ci, ok := timegrid.ColumnAt(layout.DayColumns(c.cols), p.X)
	if !ok {
		return Outcome{}
	}
	block, part, hit := layout.HitTest(c.cols[ci], p.Y, c.cfg.HandlePixels)
	if !hit || part != layout.PartBody {
		return Outcome{}
	}
	occ := block.Occurrence
	return Outcome{Detail: &occ}
}

// Escape discards the selection, the drag in progress and the draft.
func (c *Controller) Escape() Outcome {
	c.discardDrag()
	c.draft = nil
	return Outcome{}
}

// SubmitQuickAdd validates the draft's fields and, when valid, emits a
// create commit. A zero Start or End is taken from the draft. Validation
// errors leave the draft open.
func (c *Controller) SubmitQuickAdd(f model.Fields) (Outcome, error) {
	if c.draft == nil {
		return Outcome{}, ErrNoDraft
	}
	if f.Start.IsZero() {
		f.Start = c.draft.Start
	}
	if f.End.IsZero() {
		f.End = c.draft.End
	}
	if err := f.Validate(); err != nil {
		return Outcome{}, err
	}
	c.draft = nil

	commit := &Commit{Kind: CommitCreate, Fields: f, Start: f.Start, End: f.End}
	return c.track(commit, model.OccurrenceKey{}, &f), nil
}

func (c *Controller) CancelQuickAdd() {
	c.draft = nil
}

// Abandon is called when the window or view changes or the calendar is
// torn down. Nothing is committed.
func (c *Controller) Abandon() {
	c.discardDrag()
	c.draft = nil
	c.suppressUntil = time.Time{}
}

// Settle drops the overlay of a finished commit. The result itself is
// applied by the owner; a failed commit simply loses its overlay.
func (c *Controller) Settle(seq int) {
	delete(c.inflight, seq)
	if c.state.Kind == Committing && len(c.inflight) == 0 {
		c.state = State{Kind: Idle}
	}
}

// InFlight reports the number of unsettled commits.
func (c *Controller) InFlight() int {
	return len(c.inflight)
}

func (c *Controller) track(commit *Commit, key model.OccurrenceKey, create *model.Fields) Outcome {
	c.seq++
	commit.Seq = c.seq

	ov := Overlay{
		Seq:         c.seq,
		Key:         key,
		Start:       commit.Start,
		End:         commit.End,
		SourceStart: commit.SourceStart,
		SourceEnd:   commit.SourceEnd,
	}
	if create != nil {
		pending := create.Event(PendingID(c.seq))
		ov.Pending = &pending
		ov.Key = model.OccurrenceKey{SourceID: pending.ID}
	}
	c.inflight[c.seq] = ov

	c.state = State{Kind: Committing}
	return Outcome{Commit: commit}
}

func (c *Controller) discardDrag() {
	c.drag = nil
	switch c.state.Kind {
	case RangeSelecting, Moving, Resizing:
		c.state = c.restState()
	}
}

func (c *Controller) restState() State {
	if len(c.inflight) > 0 {
		return State{Kind: Committing}
	}
	return State{Kind: Idle}
}

func (c *Controller) cell() time.Duration {
	return time.Duration(c.cfg.CellMinutes) * time.Minute
}
