// Package schedule holds the pending event set and the trigger loop that
// dispatches attendance attempts at randomized moments after each event
// starts.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"attendbot/internal/calendar"
)

var (
	// ErrEmptyCalendar means filtering left nothing to schedule.
	ErrEmptyCalendar = errors.New("no schedulable events in calendar")

	// ErrDuplicateEvent means two events share the same identity.
	ErrDuplicateEvent = errors.New("duplicate event identity")
)

// Event is one scheduled attendance obligation. TriggerAt is fixed when
// the event enters the set and never recomputed while it is pending.
type Event struct {
	Name      string
	Start     time.Time
	End       time.Time
	TriggerAt time.Time
}

// Identity names an event uniquely within one set. Start is the event
// instant in Unix nanoseconds: re-parsed times carry fresh Location
// pointers, so comparing time.Time structs would split one event into
// several identities.
type Identity struct {
	Name  string
	Start int64
}

func (e Event) Identity() Identity { return Identity{Name: e.Name, Start: e.Start.UnixNano()} }

func (id Identity) String() string {
	return fmt.Sprintf("%s@%s", id.Name, time.Unix(0, id.Start).UTC().Format(time.RFC3339))
}

// EventSet is the mutable collection of pending events, kept sorted by
// TriggerAt ascending. Events are removed, never mutated in place.
type EventSet struct {
	mu     sync.Mutex
	events []Event
}

// Load builds an EventSet from raw calendar entries: drops events that
// have already started, computes each TriggerAt via policy, rejects
// duplicate identities and sorts by trigger time.
func Load(raw []calendar.Event, now time.Time, policy *OffsetPolicy) (*EventSet, error) {
	seen := make(map[Identity]struct{}, len(raw))
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		if !r.Start.After(now) {
			continue
		}
		ev := Event{
			Name:      r.Name,
			Start:     r.Start,
			End:       r.End,
			TriggerAt: policy.TriggerAt(r.Start),
		}
		id := ev.Identity()
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, id)
		}
		seen[id] = struct{}{}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, ErrEmptyCalendar
	}
	s := &EventSet{events: events}
	s.sortLocked()
	return s, nil
}

func (s *EventSet) sortLocked() {
	sort.Slice(s.events, func(i, j int) bool {
		return s.events[i].TriggerAt.Before(s.events[j].TriggerAt)
	})
}

// PeekEarliest returns the event with the earliest TriggerAt without
// removing it.
func (s *EventSet) PeekEarliest() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[0], true
}

// Remove deletes the event with the given identity. Removing an absent
// identity is a no-op; the second return reports whether anything was
// deleted.
func (s *EventSet) Remove(id Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ev := range s.events {
		if ev.Identity() == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return true
		}
	}
	return false
}

// Add reinserts an event, keeping trigger order. Returns
// ErrDuplicateEvent if the identity is already pending.
func (s *EventSet) Add(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.events {
		if cur.Identity() == ev.Identity() {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.Identity())
		}
	}
	s.events = append(s.events, ev)
	s.sortLocked()
	return nil
}

func (s *EventSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Snapshot returns a copy of the pending events in trigger order.
func (s *EventSet) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
