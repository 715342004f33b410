package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// OccurrenceKind tags an Occurrence as the literal stored interval or a
// recurrence-derived instance.
type OccurrenceKind int

const (
	Literal OccurrenceKind = iota
	Generated
)

func (k OccurrenceKind) String() string {
	if k == Generated {
		return "generated"
	}
	return "literal"
}

// OccurrenceKey identifies an occurrence within one projection. Index 0 is
// the literal occurrence; generated instances count recurrence steps from 1.
type OccurrenceKey struct {
	SourceID string `json:"sourceId"`
	Index    int    `json:"index"`
}

func (k OccurrenceKey) String() string {
	return fmt.Sprintf("%s#%d", k.SourceID, k.Index)
}

// Occurrence is one concrete interval of a CalendarEvent. It is derived and
// ephemeral: every projection pass builds a fresh set. Source is a read-only
// copy of the authoritative event.
type Occurrence struct {
	Kind   OccurrenceKind
	Source CalendarEvent
	Index  int
	Start  time.Time
	End    time.Time
}

// LiteralOf returns the occurrence for the event's stored start/end.
func LiteralOf(ev CalendarEvent) Occurrence {
	return Occurrence{Kind: Literal, Source: ev, Start: ev.Start, End: ev.End}
}

// GeneratedOf returns the index-th recurrence instance of ev.
func GeneratedOf(ev CalendarEvent, index int, start, end time.Time) Occurrence {
	return Occurrence{Kind: Generated, Source: ev, Index: index, Start: start, End: end}
}

func (o Occurrence) IsGenerated() bool {
	return o.Kind == Generated
}

func (o Occurrence) Key() OccurrenceKey {
	return OccurrenceKey{SourceID: o.Source.ID, Index: o.Index}
}

// SourceID is the id every store operation on this occurrence must target.
// Generated instances are not addressable on their own.
func (o Occurrence) SourceID() string {
	return o.Source.ID
}

func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Offset is how far this occurrence sits from its source event's start.
// Moving or resizing an occurrence by d moves the source by the same d.
func (o Occurrence) Offset() time.Duration {
	return o.Start.Sub(o.Source.Start)
}

// WithInterval returns a copy carrying a different concrete interval.
func (o Occurrence) WithInterval(start, end time.Time) Occurrence {
	o.Start = start
	o.End = end
	return o
}

// SortOccurrences orders occurrences by start ascending. Ties are broken by
// source id and then index so stacking and click targeting are stable.
func SortOccurrences(occ []Occurrence) {
	slices.SortStableFunc(occ, func(a, b Occurrence) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := strings.Compare(a.Source.ID, b.Source.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
}

// In converts the concrete interval into loc for display.
func (o Occurrence) In(loc *time.Location) Occurrence {
	if loc == nil {
		return o
	}
	o.Start = o.Start.In(loc)
	o.End = o.End.In(loc)
	return o
}
