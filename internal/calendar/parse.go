package calendar

import (
	"fmt"
	"io"
	"os"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// ParseFile reads and parses one .ics file. Recurring events are expanded
// within [now, now+horizon).
func ParseFile(path string, now time.Time, horizon time.Duration) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calendar: %w", err)
	}
	defer f.Close()
	evs, err := Parse(f, now, horizon)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return evs, nil
}

// Parse decodes an iCalendar stream into events. Entries without a usable
// start or end are skipped; a stream that yields no events at all is not
// an error here (filtering and emptiness are the caller's concern).
func Parse(r io.Reader, now time.Time, horizon time.Duration) ([]Event, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("decode ics: %w", err)
	}

	var out []Event
	for _, ve := range cal.Events() {
		start, err := ve.GetStartAt()
		if err != nil {
			continue
		}
		end, err := ve.GetEndAt()
		if err != nil || !end.After(start) {
			continue
		}
		name := ""
		if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
			name = p.Value
		}

		rule := ""
		if p := ve.GetProperty(ics.ComponentPropertyRrule); p != nil {
			rule = p.Value
		}
		if rule == "" {
			out = append(out, Event{Name: name, Start: start, End: end})
			continue
		}

		occ, err := expand(rule, start, now, horizon)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", name, err)
		}
		dur := end.Sub(start)
		for _, s := range occ {
			out = append(out, Event{Name: name, Start: s, End: s.Add(dur)})
		}
	}
	return out, nil
}

func expand(rule string, dtstart, now time.Time, horizon time.Duration) ([]time.Time, error) {
	rr, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule %q: %w", rule, err)
	}
	rr.DTStart(dtstart)
	// Expand a little into the past so an occurrence happening right now
	// is still visible to the caller's own filtering.
	return rr.Between(now.Add(-24*time.Hour), now.Add(horizon), true), nil
}
