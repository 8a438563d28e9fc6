package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations in the config file are Go duration strings ("90s", "30m") so
// the JSON stays readable; typed configs are built from them once, at
// mapping time.

// ParseDurationField parses one such field. Blank means unset and maps
// to 0; negative durations are rejected because no timeout, offset or
// backoff here may run backwards.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def for unset fields, keeping the
// per-field defaults next to where the typed config is assembled.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
