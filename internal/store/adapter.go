package store

import (
	"slices"

	"calgrid/internal/model"
)

// Adapter owns the authoritative event list of the current window. It is
// the only writer of that list: fetch results replace it wholesale and
// commit results are spliced in one entry at a time.
//
// Adapter is not safe for concurrent use; the owning calendar serializes
// access.
type Adapter struct {
	backend Backend

	window model.Window
	events []model.CalendarEvent

	// fetchSeq is the sequence of the most recent fetch request. Results
	// carrying an older sequence are stale.
	fetchSeq int
	// splicedAt is fetchSeq as of the last Put or Delete. A fetch at or
	// below it may predate that change.
	splicedAt int
	loaded    bool
}

func NewAdapter(b Backend) *Adapter {
	return &Adapter{backend: b}
}

func (a *Adapter) Backend() Backend {
	return a.backend
}

// BeginFetch records w as the wanted window and returns the sequence the
// fetch result must carry.
func (a *Adapter) BeginFetch(w model.Window) int {
	a.fetchSeq++
	a.window = w
	return a.fetchSeq
}

// ApplyFetch replaces the list with a fetch result. It reports false, and
// changes nothing, when the result is not Current.
func (a *Adapter) ApplyFetch(seq int, events []model.CalendarEvent) bool {
	if !a.Current(seq) {
		return false
	}
	a.events = slices.Clone(events)
	sortEvents(a.events)
	a.loaded = true
	return true
}

// Current reports whether seq belongs to the latest fetch and no commit
// result has been spliced in since it started.
func (a *Adapter) Current(seq int) bool {
	return seq == a.fetchSeq && seq > a.splicedAt
}

// Overtaken reports whether seq is the latest fetch but a commit result
// was spliced in while it was running. Its result must not replace the
// list; the window should be fetched again.
func (a *Adapter) Overtaken(seq int) bool {
	return seq == a.fetchSeq && seq <= a.splicedAt
}

// Put splices a created, updated or moved event into the list.
func (a *Adapter) Put(ev model.CalendarEvent) {
	if i := a.index(ev.ID); i >= 0 {
		a.events[i] = ev
	} else {
		a.events = append(a.events, ev)
	}
	sortEvents(a.events)
	a.splicedAt = a.fetchSeq
}

// Delete removes id from the list.
func (a *Adapter) Delete(id string) {
	if i := a.index(id); i >= 0 {
		a.events = slices.Delete(a.events, i, i+1)
	}
	a.splicedAt = a.fetchSeq
}

// Events returns a copy of the authoritative list.
func (a *Adapter) Events() []model.CalendarEvent {
	return slices.Clone(a.events)
}

func (a *Adapter) Lookup(id string) (model.CalendarEvent, bool) {
	if i := a.index(id); i >= 0 {
		return a.events[i], true
	}
	return model.CalendarEvent{}, false
}

func (a *Adapter) Window() model.Window {
	return a.window
}

// Loaded reports whether any fetch has been applied.
func (a *Adapter) Loaded() bool {
	return a.loaded
}

func (a *Adapter) index(id string) int {
	return slices.IndexFunc(a.events, func(ev model.CalendarEvent) bool { return ev.ID == id })
}
