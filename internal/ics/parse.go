package ics

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// ParseICS reads an iCalendar payload into create payloads, one per VEVENT.
//
//   - Times come from the library's DTSTART/DTEND handling (TZID aware).
//   - A missing DTEND means one hour for timed events and one day for
//     all-day events.
//   - RRULE frequency, interval, COUNT and UNTIL are kept. Other RRULE parts
//     (BYDAY lists, EXDATE, RECURRENCE-ID overrides) are not representable
//     and are dropped.
//
// Events that fail to parse or validate are logged and skipped; the rest
// of the payload is still returned.
func ParseICS(body []byte) ([]model.Fields, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	out := make([]model.Fields, 0)
	for _, ve := range cal.Events() {
		f, perr := parseVEvent(ve)
		if perr == nil {
			perr = f.Validate()
		}
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "uid", ve.Id())
			continue
		}
		out = append(out, f)
	}

	appLog.Info("ics parse completed", "event_count", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (model.Fields, error) {
	var f model.Fields

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		f.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		f.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyColor); p != nil {
		f.Color = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		for _, c := range strings.Split(p.Value, ",") {
			if t := model.EventType(strings.ToLower(strings.TrimSpace(c))); t.Valid() {
				f.Type = t
				break
			}
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return f, fmt.Errorf("dtstart: %w", err)
	}
	f.Start = start
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
			f.Timezone = tz[0]
		}
	}

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		f.End = end
	case allDay(ve):
		f.End = start.AddDate(0, 0, 1)
	default:
		f.End = start.Add(time.Hour)
	}

	for _, alarm := range ve.Alarms() {
		if p := alarm.GetProperty(ical.ComponentPropertyTrigger); p != nil {
			if m, ok := triggerMinutes(p.Value); ok {
				f.ReminderMinutesBefore = &m
				break
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		applyRRule(&f, p.Value)
	}
	return f, nil
}

func allDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func applyRRule(f *model.Fields, raw string) {
	f.Recurrence = model.ParseRule(raw)
	if f.Recurrence.Validate() != nil {
		// Kept as-is; expansion degrades to the literal occurrence.
		return
	}
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return
	}
	if opt.Count > 0 {
		n := opt.Count
		f.RecurrenceCount = &n
	}
	if !opt.Until.IsZero() {
		u := opt.Until
		f.RecurrenceEnd = &u
	}
}

var triggerPattern = regexp.MustCompile(`^-P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// triggerMinutes reads a relative "before start" trigger such as -PT15M or
// -P1DT2H. Positive or absolute triggers are not reminders in this model.
func triggerMinutes(v string) (int, bool) {
	m := triggerPattern.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, false
	}
	total := 0
	for i, mult := range []int{24 * 60, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		total += n * mult
	}
	return total, true
}
