// Package storage persists the attempt history so outcomes survive
// restarts and feed the daily summary.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "attendbot/pkg/logx"
)

// Store is the attempt-history persistence API.
type Store interface {
	AppendAttempt(ctx context.Context, rec AttemptRecord) error
	// RecentAttempts returns up to n records, newest first.
	RecentAttempts(ctx context.Context, n int) ([]AttemptRecord, error)
	// Prune drops records older than maxAge and, when maxRecords > 0,
	// keeps only the newest maxRecords. Returns how many were dropped.
	Prune(ctx context.Context, maxAge time.Duration, maxRecords int) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
