package calendar

import (
	"context"
	"time"

	"calgrid/internal/interaction"
	"calgrid/internal/model"
	"calgrid/internal/timegrid"
)

// Msg is an input to Calendar.Update: a user action or the result of a
// Cmd.
type Msg any

// Cmd is deferred work, normally a store call. It runs outside Update and
// its returned Msg is fed back into Update.
type Cmd func(ctx context.Context) Msg

// SetView changes the view mode and anchor date. Any interaction in
// progress is abandoned and the new window is fetched.
type SetView struct {
	Mode   model.ViewMode `json:"mode"`
	Anchor time.Time      `json:"anchor"`
}

// SetColumns passes measured day-column geometry from the host. An empty
// list restores the default even layout.
type SetColumns struct {
	Columns []timegrid.DayColumn `json:"columns"`
}

type PointerDown struct {
	timegrid.Point
}

type PointerMove struct {
	timegrid.Point
}

type PointerUp struct {
	timegrid.Point
}

type Click struct {
	timegrid.Point
}

type Escape struct{}

type QuickAddSubmit struct {
	Fields model.Fields `json:"fields"`
}

type QuickAddCancel struct{}

// UpdateEvent is a detail-view edit of the event with ID.
type UpdateEvent struct {
	ID    string      `json:"id"`
	Patch model.Patch `json:"patch"`
}

// DeleteOccurrence deletes the event behind an occurrence. For a generated
// occurrence that is its source event.
type DeleteOccurrence struct {
	Key model.OccurrenceKey `json:"key"`
}

type CloseDetail struct{}

type DismissNotice struct{}

// Refresh re-fetches the current window.
type Refresh struct{}

// Unmount tears the calendar down. Later inputs are ignored.
type Unmount struct{}

// FetchResult carries a window fetch back into Update.
type FetchResult struct {
	Seq    int
	Events []model.CalendarEvent
	Err    error
}

// CommitResult carries the result of a pointer commit.
type CommitResult struct {
	Seq   int
	Kind  interaction.CommitKind
	Event model.CalendarEvent
	Err   error
}

// UpdateResult carries the result of a detail-view edit.
type UpdateResult struct {
	ID    string
	Event model.CalendarEvent
	Err   error
}

// DeleteResult carries the result of a delete.
type DeleteResult struct {
	ID  string
	Err error
}
