package interaction

import (
	"strconv"
	"strings"
	"time"

	"calgrid/internal/model"
)

// Kind names the controller's current interaction.
type Kind int

const (
	Idle Kind = iota
	RangeSelecting
	Moving
	Resizing
	Committing
)

func (k Kind) String() string {
	switch k {
	case RangeSelecting:
		return "range_selecting"
	case Moving:
		return "moving"
	case Resizing:
		return "resizing"
	case Committing:
		return "committing"
	default:
		return "idle"
	}
}

// Edge is the boundary a resize drags.
type Edge int

const (
	EdgeBottom Edge = iota
	EdgeTop
)

func (e Edge) String() string {
	if e == EdgeTop {
		return "top"
	}
	return "bottom"
}

// State is a snapshot of the controller. Only the fields relevant to Kind
// are set.
type State struct {
	Kind Kind `json:"kind"`

	// RangeSelecting: the cell the selection started in.
	Anchor time.Time `json:"anchor,omitzero"`

	// Moving and Resizing: the occurrence as it was before the drag.
	Occurrence *model.Occurrence `json:"-"`
	Edge       Edge              `json:"edge,omitempty"`

	// Candidate is the current preview interval while dragging.
	Candidate model.Window `json:"candidate,omitzero"`
}

// Draft is an open quick-add form prefilled from a range selection.
type Draft struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlay is a local change laid over every re-projection until it is
// settled. Seq is zero for the preview of the drag in progress.
type Overlay struct {
	Seq   int                 `json:"seq"`
	Key   model.OccurrenceKey `json:"key"`
	Start time.Time           `json:"start"`
	End   time.Time           `json:"end"`

	// SourceStart and SourceEnd are the interval the source event will have
	// once a move or resize commit lands. Zero for creates and previews.
	SourceStart time.Time `json:"sourceStart,omitzero"`
	SourceEnd   time.Time `json:"sourceEnd,omitzero"`

	// Pending is the not-yet-created event of a create commit.
	Pending *model.CalendarEvent `json:"pending,omitempty"`
}

// CommitKind is the store operation a commit maps to.
type CommitKind int

const (
	CommitCreate CommitKind = iota
	CommitMove
	CommitResize
)

func (k CommitKind) String() string {
	switch k {
	case CommitMove:
		return "move"
	case CommitResize:
		return "resize"
	default:
		return "create"
	}
}

// Commit asks the owner to perform one store operation. Move and resize
// always target the source event; for a generated occurrence the drag
// delta is applied to the source's own interval.
type Commit struct {
	Seq  int
	Kind CommitKind

	// CommitCreate
	Fields model.Fields

	// CommitMove and CommitResize
	SourceID    string
	Occurrence  model.Occurrence
	Start, End  time.Time
	SourceStart time.Time
	SourceEnd   time.Time
	Patch       model.Patch
}

// Outcome is what one input produced besides the state change.
type Outcome struct {
	Commit  *Commit
	Refetch bool
	Detail  *model.Occurrence
}

func (o Outcome) Empty() bool {
	return o.Commit == nil && !o.Refetch && o.Detail == nil
}

type drag struct {
	occ    model.Occurrence
	column int
	edge   Edge
	moved  bool
}

const pendingPrefix = "pending-"

// PendingID is the placeholder id shown for a create that has not been
// confirmed by the store yet.
func PendingID(seq int) string {
	return pendingPrefix + strconv.Itoa(seq)
}

// IsPending reports whether id is a placeholder from PendingID.
func IsPending(id string) bool {
	return strings.HasPrefix(id, pendingPrefix)
}
