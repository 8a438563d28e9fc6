package notifier

import "time"

// Config tunes the async send pipeline. Zero values fall back to the
// defaults applied in applyLocked.
type Config struct {
	Enabled bool

	Workers    int
	QueueSize  int
	RatePerSec int

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// DedupWindow suppresses identical notifications within the window.
	// Zero disables dedup.
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// HistoryItem is a recently sent notification, kept for status views.
type HistoryItem struct {
	At   time.Time
	Text string
}

// NotificationEvent is published on the bus for queued/sent/failed/deduped
// notifications.
type NotificationEvent struct {
	Channel  string
	ChatID   int64
	ThreadID int
	Key      string
	At       time.Time
	Error    string
}
