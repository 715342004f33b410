package model

import (
	"errors"
	"strings"
	"time"
)

// EventType classifies an event; each type has a default display color.
type EventType string

const (
	TypeEvent    EventType = "event"
	TypeTask     EventType = "task"
	TypeNote     EventType = "note"
	TypeReminder EventType = "reminder"
)

var defaultColors = map[EventType]string{
	TypeEvent:    "#3b82f6",
	TypeTask:     "#10b981",
	TypeNote:     "#f59e0b",
	TypeReminder: "#ef4444",
}

// DefaultColor returns the type's default color. Unknown types use the
// color of TypeEvent.
func (t EventType) DefaultColor() string {
	if c, ok := defaultColors[t]; ok {
		return c
	}
	return defaultColors[TypeEvent]
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	_, ok := defaultColors[t]
	return ok
}

// Validation errors returned at the creation boundary.
var (
	ErrEmptyTitle       = errors.New("title must not be empty")
	ErrInvalidRange     = errors.New("end time must be after start time")
	ErrNegativeReminder = errors.New("reminder minutes must not be negative")
)

// CalendarEvent is the authoritative, server-owned event record.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"startTime"`
	End         time.Time `json:"endTime"`
	Type        EventType `json:"type"`
	Color       string    `json:"color,omitempty"`

	// Timezone is advisory; it never changes the stored instants.
	Timezone string `json:"timezone,omitempty"`

	ReminderMinutesBefore *int `json:"reminderMinutesBefore,omitempty"`

	Recurrence      *RecurrenceRule `json:"recurrenceRule,omitempty"`
	RecurrenceEnd   *time.Time      `json:"recurrenceEndDate,omitempty"`
	RecurrenceCount *int            `json:"recurrenceCount,omitempty"`
}

// DisplayColor returns the explicit color or the type default.
func (e CalendarEvent) DisplayColor() string {
	if e.Color != "" {
		return e.Color
	}
	return e.Type.DefaultColor()
}

func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

func (e CalendarEvent) IsRecurring() bool {
	return e.Recurrence != nil
}

// Fields is the payload of a create call; the server assigns the id.
type Fields struct {
	Title                 string          `json:"title"`
	Description           string          `json:"description,omitempty"`
	Start                 time.Time       `json:"startTime"`
	End                   time.Time       `json:"endTime"`
	Type                  EventType       `json:"type"`
	Color                 string          `json:"color,omitempty"`
	Timezone              string          `json:"timezone,omitempty"`
	ReminderMinutesBefore *int            `json:"reminderMinutesBefore,omitempty"`
	Recurrence            *RecurrenceRule `json:"recurrenceRule,omitempty"`
	RecurrenceEnd         *time.Time      `json:"recurrenceEndDate,omitempty"`
	RecurrenceCount       *int            `json:"recurrenceCount,omitempty"`
}

// Validate rejects payloads that must never reach the network.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return ErrEmptyTitle
	}
	if !f.End.After(f.Start) {
		return ErrInvalidRange
	}
	if f.ReminderMinutesBefore != nil && *f.ReminderMinutesBefore < 0 {
		return ErrNegativeReminder
	}
	return nil
}

// Event materializes the fields into an event with the given id.
func (f Fields) Event(id string) CalendarEvent {
	typ := f.Type
	if typ == "" {
		typ = TypeEvent
	}
	return CalendarEvent{
		ID:                    id,
		Title:                 f.Title,
		Description:           f.Description,
		Start:                 f.Start,
		End:                   f.End,
		Type:                  typ,
		Color:                 f.Color,
		Timezone:              f.Timezone,
		ReminderMinutesBefore: f.ReminderMinutesBefore,
		Recurrence:            f.Recurrence,
		RecurrenceEnd:         f.RecurrenceEnd,
		RecurrenceCount:       f.RecurrenceCount,
	}
}

// Patch is a partial update. Only non-nil fields are sent and applied.
type Patch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Start       *time.Time `json:"startTime,omitempty"`
	End         *time.Time `json:"endTime,omitempty"`
	Type        *EventType `json:"type,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Timezone    *string    `json:"timezone,omitempty"`

	ReminderMinutesBefore *int `json:"reminderMinutesBefore,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply returns a copy of ev with the patch applied.
func (p Patch) Apply(ev CalendarEvent) CalendarEvent {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.Type != nil {
		ev.Type = *p.Type
	}
	if p.Color != nil {
		ev.Color = *p.Color
	}
	if p.Timezone != nil {
		ev.Timezone = *p.Timezone
	}
	if p.ReminderMinutesBefore != nil {
		v := *p.ReminderMinutesBefore
		ev.ReminderMinutesBefore = &v
	}
	return ev
}

// Window is a half-open visible range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// ViewMode selects how the window is derived from an anchor date.
type ViewMode string

const (
	ViewDay   ViewMode = "day"
	ViewWeek  ViewMode = "week"
	ViewMonth ViewMode = "month"
)

// ParseViewMode returns the view mode for s, defaulting to week.
func ParseViewMode(s string) ViewMode {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case ViewDay:
		return ViewDay
	case ViewMonth:
		return ViewMonth
	default:
		return ViewWeek
	}
}
