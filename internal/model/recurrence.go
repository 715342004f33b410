package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/teambition/rrule-go"
)

// Frequency is the recurrence period unit.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

var (
	ErrUnknownFrequency = errors.New("unknown recurrence frequency")
	ErrInvalidInterval  = errors.New("recurrence interval must be positive")
)

// RecurrenceRule says how often an event repeats.
//
// The backend may store the rule as a JSON object, as a string holding that
// JSON, or as an RRULE line ("FREQ=WEEKLY;INTERVAL=2"). Decoding never fails
// the enclosing event: a rule that cannot be read keeps the raw text and the
// error, and Validate reports it.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`

	raw      string
	parseErr error
}

// Validate returns nil when the rule can drive expansion.
func (r *RecurrenceRule) Validate() error {
	if r == nil {
		return nil
	}
	if r.parseErr != nil {
		return fmt.Errorf("parse recurrence rule %q: %w", r.raw, r.parseErr)
	}
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, r.Interval)
	}
	return nil
}

// Raw returns the text the rule was decoded from, if any.
func (r *RecurrenceRule) Raw() string {
	if r == nil {
		return ""
	}
	return r.raw
}

// ruleFields avoids recursing into UnmarshalJSON.
type ruleFields struct {
	Frequency Frequency `json:"frequency"`
	Interval  *int      `json:"interval"`
}

func (r *RecurrenceRule) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	r.raw = string(data)

	switch {
	case len(data) > 0 && data[0] == '{':
		r.parseErr = r.decodeObject(data)
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			r.parseErr = err
			return nil
		}
		s = strings.TrimSpace(s)
		r.raw = s
		switch {
		case s == "":
			r.parseErr = errors.New("empty rule")
		case strings.HasPrefix(s, "{"):
			r.parseErr = r.decodeObject([]byte(s))
		default:
			r.parseErr = r.decodeRRule(s)
		}
	default:
		r.parseErr = fmt.Errorf("unsupported rule encoding %q", string(data))
	}
	return nil
}

func (r *RecurrenceRule) decodeObject(data []byte) error {
	var f ruleFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	r.Frequency = Frequency(strings.ToLower(string(f.Frequency)))
	r.Interval = 1
	if f.Interval != nil {
		r.Interval = *f.Interval
	}
	return nil
}

func (r *RecurrenceRule) decodeRRule(s string) error {
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return err
	}
	switch opt.Freq {
	case rrule.DAILY:
		r.Frequency = FrequencyDaily
	case rrule.WEEKLY:
		r.Frequency = FrequencyWeekly
	case rrule.MONTHLY:
		r.Frequency = FrequencyMonthly
	default:
		r.Frequency = Frequency(strings.ToLower(opt.Freq.String()))
	}
	r.Interval = 1
	if opt.Interval != 0 {
		r.Interval = opt.Interval
	}
	return nil
}

// MarshalJSON writes the object form. An unreadable rule is written back as
// its raw text so a round trip through a store does not lose it.
func (r RecurrenceRule) MarshalJSON() ([]byte, error) {
	if r.parseErr != nil {
		return json.Marshal(r.raw)
	}
	return json.Marshal(ruleFields{Frequency: r.Frequency, Interval: &r.Interval})
}

// ParseRule reads an RRULE line such as "FREQ=DAILY;INTERVAL=2". Like
// decoding, it never fails: an unreadable rule reports through Validate.
func ParseRule(s string) *RecurrenceRule {
	s = strings.TrimSpace(s)
	r := &RecurrenceRule{raw: s}
	r.parseErr = r.decodeRRule(s)
	return r
}
