package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// productService names the PRODID of exported calendars.
const productService = "calgrid"

// ExportOptions controls Export. The zero value is usable.
type ExportOptions struct {
	// Name is written as X-WR-CALNAME when set.
	Name string

	// Monthly selects how a monthly rule is written as RRULE, matching the
	// mode used for expansion.
	Monthly MonthlyMode

	// Now stamps DTSTAMP. Defaults to time.Now.
	Now func() time.Time
}

// Export writes one VEVENT per stored event. Recurring events are written
// once, as their base definition plus an RRULE.
func Export(w io.Writer, events []model.CalendarEvent) error {
	return ExportWith(w, events, ExportOptions{})
}

// ExportWith is Export with explicit options.
func ExportWith(w io.Writer, events []model.CalendarEvent, opts ExportOptions) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	stamp := now()

	cal := ical.NewCalendarFor(productService)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, ev := range events {
		addEvent(cal, ev, stamp, opts)
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("serialize calendar: %w", err)
	}
	appLog.Debug("ics export completed", "event_count", len(events))
	return nil
}

func addEvent(cal *ical.Calendar, ev model.CalendarEvent, stamp time.Time, opts ExportOptions) {
	vev := cal.AddEvent(ev.ID)
	vev.SetDtStampTime(stamp)
	vev.SetStartAt(ev.Start)
	vev.SetEndAt(ev.End)
	// TEXT values are backslash-escaped by the serializer.
	vev.SetSummary(ev.Title)
	if ev.Description != "" {
		vev.SetDescription(ev.Description)
	}
	if ev.Type != "" {
		vev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(ev.Type)))
	}
	if ev.Color != "" {
		vev.SetColor(ev.Color)
	}

	if ev.ReminderMinutesBefore != nil {
		alarm := vev.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", *ev.ReminderMinutesBefore))
		alarm.SetProperty(ical.ComponentPropertyDescription, ev.Title)
	}

	if ev.Recurrence == nil {
		return
	}
	ropt, err := ruleOptions(ev, ExpandOptions{Monthly: opts.Monthly})
	if err != nil {
		appLog.Error("ics export: skipping unusable recurrence rule", err, "id", ev.ID, "rule", ev.Recurrence.Raw())
		return
	}
	vev.AddRrule(ropt.RRuleString())
}
