package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AttemptRecord is one completed attendance attempt.
// Keep it compact and schema-stable.
type AttemptRecord struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	Start   time.Time `json:"start"`
	Manual  bool      `json:"manual"`
	Success bool      `json:"success"`
	TookMS  int64     `json:"took_ms"`
	Error   string    `json:"error,omitempty"`
}
