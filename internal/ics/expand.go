package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

const (
	// DefaultMaxOccurrences caps expansion of a rule without recurrenceCount.
	DefaultMaxOccurrences = 1000

	// approxMonthDays is the step used for "monthly" in MonthlyApprox30 mode.
	approxMonthDays = 30
)

// MonthlyMode selects how a monthly rule advances.
type MonthlyMode string

const (
	// MonthlyApprox30 advances by interval*30 days.
	MonthlyApprox30 MonthlyMode = "approx30"
	// MonthlyCalendar advances by calendar months (RFC 5545 MONTHLY).
	MonthlyCalendar MonthlyMode = "calendar"
)

// ParseMonthlyMode defaults to MonthlyApprox30.
func ParseMonthlyMode(s string) MonthlyMode {
	if MonthlyMode(s) == MonthlyCalendar {
		return MonthlyCalendar
	}
	return MonthlyApprox30
}

var errNonPositiveCount = errors.New("recurrence count must be positive")

// ExpandOptions controls how recurrence expansion is performed.
type ExpandOptions struct {
	// Location, if set, is the zone occurrences are converted to for display.
	Location *time.Location

	// MaxOccurrences caps rules without recurrenceCount. If zero,
	// DefaultMaxOccurrences is used.
	MaxOccurrences int

	Monthly MonthlyMode
}

// ExpandResult wraps the expanded occurrences and per-event anomalies.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// Degraded lists ids whose rule was unusable; only their literal
	// occurrence was produced.
	Degraded []string
	// Truncated lists ids whose expansion stopped at the default cap before
	// reaching the window end.
	Truncated []string
}

// ExpandAll expands every event over the window. Each event is expanded on
// its own, so one malformed rule never affects its siblings. The result is
// sorted by occurrence start.
func ExpandAll(events []model.CalendarEvent, w model.Window, opts ExpandOptions) ExpandResult {
	var result ExpandResult
	all := make([]model.Occurrence, 0, len(events))

	for _, ev := range events {
		occ, degraded, truncated := expandEvent(ev, w.Start, w.End, opts)
		if degraded {
			result.Degraded = append(result.Degraded, ev.ID)
		}
		if truncated {
			result.Truncated = append(result.Truncated, ev.ID)
			appLog.Warn("expand: occurrences truncated at cap", "id", ev.ID, "cap", maxOccurrences(opts))
		}
		all = append(all, occ...)
	}

	model.SortOccurrences(all)
	result.Occurrences = all
	return result
}

// ExpandEvent returns the occurrences of ev within [windowStart, windowEnd]:
// the literal occurrence when it intersects the window, followed by the
// generated instances in chronological order.
func ExpandEvent(ev model.CalendarEvent, windowStart, windowEnd time.Time, opts ExpandOptions) []model.Occurrence {
	occ, _, _ := expandEvent(ev, windowStart, windowEnd, opts)
	return occ
}

func expandEvent(ev model.CalendarEvent, windowStart, windowEnd time.Time, opts ExpandOptions) ([]model.Occurrence, bool, bool) {
	out := expandLiteral(ev, windowStart, windowEnd, opts)
	if ev.Recurrence == nil {
		return out, false, false
	}

	r, limit, err := buildRule(ev, opts)
	if err != nil {
		appLog.Error("expand: unusable recurrence rule, keeping literal occurrence only", err,
			"id", ev.ID,
			"rule", ev.Recurrence.Raw(),
		)
		return out, true, false
	}

	generated, hitCap := expandRecurring(ev, r, limit, windowStart, windowEnd, opts)
	truncated := hitCap && ev.RecurrenceCount == nil
	return append(out, generated...), false, truncated
}

func expandLiteral(ev model.CalendarEvent, windowStart, windowEnd time.Time, opts ExpandOptions) []model.Occurrence {
	w := model.Window{Start: windowStart, End: windowEnd}
	if !w.Overlaps(ev.Start, ev.End) {
		return nil
	}
	return []model.Occurrence{model.LiteralOf(ev).In(opts.Location)}
}

// buildRule translates the event's rule and end conditions into an rrule.
// The returned limit counts the original occurrence.
func buildRule(ev model.CalendarEvent, opts ExpandOptions) (*rrule.RRule, int, error) {
	ropt, err := ruleOptions(ev, opts)
	if err != nil {
		return nil, 0, err
	}
	limit := ropt.Count
	if limit == 0 {
		limit = maxOccurrences(opts)
		ropt.Count = limit
	}

	r, err := rrule.NewRRule(ropt)
	if err != nil {
		return nil, 0, err
	}
	return r, limit, nil
}

// ruleOptions maps the event onto rrule options. Count is left zero when
// the event has no recurrenceCount.
func ruleOptions(ev model.CalendarEvent, opts ExpandOptions) (rrule.ROption, error) {
	if err := ev.Recurrence.Validate(); err != nil {
		return rrule.ROption{}, err
	}

	ropt := rrule.ROption{
		Dtstart:  ev.Start,
		Interval: ev.Recurrence.Interval,
	}
	if ev.RecurrenceCount != nil {
		if *ev.RecurrenceCount < 1 {
			return rrule.ROption{}, fmt.Errorf("%w: %d", errNonPositiveCount, *ev.RecurrenceCount)
		}
		ropt.Count = *ev.RecurrenceCount
	}

	switch ev.Recurrence.Frequency {
	case model.FrequencyDaily:
		ropt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		ropt.Freq = rrule.WEEKLY
	case model.FrequencyMonthly:
		if opts.Monthly == MonthlyCalendar {
			ropt.Freq = rrule.MONTHLY
		} else {
			ropt.Freq = rrule.DAILY
			ropt.Interval = ev.Recurrence.Interval * approxMonthDays
		}
	}
	if ev.RecurrenceEnd != nil {
		ropt.Until = *ev.RecurrenceEnd
	}
	return ropt, nil
}

// expandRecurring walks the rule from the original start. Step 0 is the
// original itself and is never emitted here. Iteration ends when the rule is
// exhausted (count or until) or a candidate passes windowEnd; the second
// return value reports exhaustion by count.
func expandRecurring(ev model.CalendarEvent, r *rrule.RRule, limit int, windowStart, windowEnd time.Time, opts ExpandOptions) ([]model.Occurrence, bool) {
	out := make([]model.Occurrence, 0)
	dur := ev.Duration()

	next := r.Iterator()
	index := 0
	for {
		start, ok := next()
		if !ok {
			return out, index >= limit
		}
		if start.After(windowEnd) {
			return out, false
		}
		if index > 0 && !start.Before(windowStart) {
			occ := model.GeneratedOf(ev, index, start, start.Add(dur))
			out = append(out, occ.In(opts.Location))
		}
		index++
	}
}

func maxOccurrences(opts ExpandOptions) int {
	if opts.MaxOccurrences <= 0 {
		return DefaultMaxOccurrences
	}
	return opts.MaxOccurrences
}
