package eventbus

import "time"

// Well-known event types published on the bus.
const (
	// TypeAttemptFinished is published by the scheduler after every
	// attendance attempt, successful or not. Data is AttemptFinished.
	TypeAttemptFinished = "attempt.finished"

	// TypeScheduleRefreshed is published after the event set is rebuilt
	// from calendar sources. Data is ScheduleRefreshed.
	TypeScheduleRefreshed = "schedule.refreshed"

	// TypeManualTrigger is published when an operator fires a manual
	// attendance run. Data is nil.
	TypeManualTrigger = "manual.trigger"
)

// AttemptFinished describes one completed attendance attempt.
type AttemptFinished struct {
	Event    string        `json:"event"`
	Start    time.Time     `json:"start"`
	Manual   bool          `json:"manual"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"err,omitempty"`
}

// ScheduleRefreshed describes the outcome of a schedule rebuild.
type ScheduleRefreshed struct {
	Pending  int       `json:"pending"`
	Excluded int       `json:"excluded"`
	NextAt   time.Time `json:"next_at,omitzero"`
}

// AttemptFinishedEvent wraps the payload for Publish.
func AttemptFinishedEvent(fin AttemptFinished) Event {
	return Event{Type: TypeAttemptFinished, Data: fin}
}

// ScheduleRefreshedEvent wraps the payload for Publish.
func ScheduleRefreshedEvent(sr ScheduleRefreshed) Event {
	return Event{Type: TypeScheduleRefreshed, Data: sr}
}

// AttemptFinishedFrom extracts the typed payload, reporting false for
// any other event.
func AttemptFinishedFrom(e Event) (AttemptFinished, bool) {
	fin, ok := e.Data.(AttemptFinished)
	return fin, ok && e.Type == TypeAttemptFinished
}
