// Package store is the edge between the calendar engine and the event
// backend: the Backend contract, its REST client and in-memory
// implementations, a gin handler serving the contract, and the Adapter
// that owns the authoritative event list of the visible window.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"calgrid/internal/model"
)

var ErrNotFound = errors.New("event not found")

// Backend is the authoritative event store. Every call may block on the
// network and must honor ctx.
type Backend interface {
	// FetchWindow returns every event whose stored interval or recurrence
	// may overlap [start, end).
	FetchWindow(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error)
	Create(ctx context.Context, f model.Fields) (model.CalendarEvent, error)
	Update(ctx context.Context, id string, p model.Patch) (model.CalendarEvent, error)
	Move(ctx context.Context, id string, start, end time.Time) (model.CalendarEvent, error)
	Remove(ctx context.Context, id string) error
}

// MayOverlap reports whether ev can have an occurrence inside [start, end).
// Recurring events are kept unless their recurrence provably ended before
// the window.
func MayOverlap(ev model.CalendarEvent, start, end time.Time) bool {
	if !ev.Start.Before(end) {
		return false
	}
	if ev.End.After(start) {
		return true
	}
	if !ev.IsRecurring() {
		return false
	}
	if ev.RecurrenceEnd != nil && ev.RecurrenceEnd.Before(start) {
		return false
	}
	return true
}

func sortEvents(evs []model.CalendarEvent) {
	slices.SortStableFunc(evs, func(a, b model.CalendarEvent) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
