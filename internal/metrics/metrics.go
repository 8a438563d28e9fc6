// Package metrics tracks per-run counters for attendance attempts and
// carries the process exit decision from workers back to main.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Run accumulates counters over the lifetime of one process run.
// All methods are safe for concurrent use.
type Run struct {
	started   time.Time
	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	manual    atomic.Int64
}

func NewRun() *Run {
	return &Run{started: time.Now()}
}

func (r *Run) RecordAttempt(manual, success bool) {
	r.attempted.Add(1)
	if success {
		r.succeeded.Add(1)
	} else {
		r.failed.Add(1)
	}
	if manual {
		r.manual.Add(1)
	}
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	Started   time.Time `json:"started"`
	Attempted int64     `json:"attempted"`
	Succeeded int64     `json:"succeeded"`
	Failed    int64     `json:"failed"`
	Manual    int64     `json:"manual"`
}

func (r *Run) Snapshot() Snapshot {
	return Snapshot{
		Started:   r.started,
		Attempted: r.attempted.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		Manual:    r.manual.Load(),
	}
}

// Latch is a close-once boolean latch. It carries the operator's exit
// request from the TUI back to the application lifecycle.
type Latch struct {
	once sync.Once
	done chan struct{}
}

func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Set trips the latch. Subsequent calls are no-ops.
func (l *Latch) Set() {
	l.once.Do(func() { close(l.done) })
}

// Done is closed after the first Set.
func (l *Latch) Done() <-chan struct{} { return l.done }

func (l *Latch) IsSet() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
