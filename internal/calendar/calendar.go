// Package calendar discovers, parses and filters the local .ics timetable
// that feeds the scheduler. The event set is built once at startup; a
// freshly downloaded calendar takes effect on the next process start.
package calendar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"attendbot/internal/config"
)

// Event is a raw timetable entry before scheduling decisions are applied.
type Event struct {
	Name  string
	Start time.Time
	End   time.Time
}

// DefaultExcludeMarker matches timetable entries that do not require
// attendance marking.
const DefaultExcludeMarker = "Optional Attendance"

// Discover returns the path of the single .ics file in dir. The directory
// is created if absent. Zero or multiple candidates is a configuration
// error: the operator must resolve the ambiguity by hand.
func Discover(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create calendar dir: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.ics"))
	if err != nil {
		return "", fmt.Errorf("scan calendar dir: %w", err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no .ics file in %s", config.ErrConfig, dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %d .ics files in %s, expected exactly one", config.ErrConfig, len(matches), dir)
	}
}

// Filter keeps events that start strictly after now and whose name does
// not contain the exclusion marker. An empty marker disables exclusion.
func Filter(events []Event, now time.Time, marker string) []Event {
	kept := make([]Event, 0, len(events))
	for _, ev := range events {
		if !ev.Start.After(now) {
			continue
		}
		if marker != "" && strings.Contains(ev.Name, marker) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}
