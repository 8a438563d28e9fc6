package schedule

import (
	"errors"
	"testing"
	"time"

	"attendbot/internal/calendar"
)

func TestLoadFiltersAndSorts(t *testing.T) {
	now := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	raw := []calendar.Event{
		{Name: "Past", Start: now.Add(-time.Hour), End: now.Add(-30 * time.Minute)},
		{Name: "Later", Start: now.Add(4 * time.Hour), End: now.Add(5 * time.Hour)},
		{Name: "Sooner", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)},
	}
	set, err := Load(raw, now, NewOffsetPolicy(DefaultOffsetMin, DefaultOffsetMax, 1))
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 2 {
		t.Fatalf("len = %d, want 2", set.Len())
	}
	evs := set.Snapshot()
	if evs[0].Name != "Sooner" || evs[1].Name != "Later" {
		t.Fatalf("order = %s, %s", evs[0].Name, evs[1].Name)
	}
	for _, ev := range evs {
		off := ev.TriggerAt.Sub(ev.Start)
		if off < DefaultOffsetMin || off >= DefaultOffsetMax {
			t.Fatalf("%s offset %v outside [%v, %v)", ev.Name, off, DefaultOffsetMin, DefaultOffsetMax)
		}
	}
}

func TestLoadRejectsDuplicateIdentity(t *testing.T) {
	now := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)
	raw := []calendar.Event{
		{Name: "Lecture", Start: start, End: start.Add(time.Hour)},
		{Name: "Lecture", Start: start, End: start.Add(2 * time.Hour)},
	}
	if _, err := Load(raw, now, NewOffsetPolicy(0, 0, 1)); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("err = %v, want ErrDuplicateEvent", err)
	}
}

func TestLoadEmptyCalendar(t *testing.T) {
	now := time.Now()
	raw := []calendar.Event{
		{Name: "Done", Start: now.Add(-time.Hour), End: now.Add(-30 * time.Minute)},
	}
	if _, err := Load(raw, now, NewOffsetPolicy(0, 0, 1)); !errors.Is(err, ErrEmptyCalendar) {
		t.Fatalf("err = %v, want ErrEmptyCalendar", err)
	}
	if _, err := Load(nil, now, NewOffsetPolicy(0, 0, 1)); !errors.Is(err, ErrEmptyCalendar) {
		t.Fatalf("nil input: err = %v, want ErrEmptyCalendar", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	base := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	ev := Event{Name: "Lecture", Start: base, End: base.Add(time.Hour), TriggerAt: base.Add(5 * time.Minute)}
	set := &EventSet{events: []Event{ev}}

	if !set.Remove(ev.Identity()) {
		t.Fatal("first remove reported nothing deleted")
	}
	if set.Remove(ev.Identity()) {
		t.Fatal("second remove reported a deletion")
	}
	if set.Len() != 0 {
		t.Fatalf("len = %d, want 0", set.Len())
	}
}

func TestAddRejectsPendingDuplicate(t *testing.T) {
	base := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	ev := Event{Name: "Lecture", Start: base, TriggerAt: base.Add(5 * time.Minute)}
	set := &EventSet{}
	if err := set.Add(ev); err != nil {
		t.Fatal(err)
	}
	if err := set.Add(ev); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("err = %v, want ErrDuplicateEvent", err)
	}
}

func TestIdentityIgnoresTimeLocation(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	other := time.FixedZone("shifted", 3600)

	ev := Event{Name: "CS101", Start: base, End: base.Add(time.Hour), TriggerAt: base.Add(5 * time.Minute)}
	set := &EventSet{}
	if err := set.Add(ev); err != nil {
		t.Fatal(err)
	}

	// Same instant re-parsed into a different location, as a calendar
	// refresh produces.
	dup := Event{Name: "CS101", Start: base.In(other), End: base.Add(time.Hour), TriggerAt: base.Add(7 * time.Minute)}
	if err := set.Add(dup); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("err = %v, want ErrDuplicateEvent (set len %d)", err, set.Len())
	}
	if !set.Remove(dup.Identity()) {
		t.Fatal("remove via relocated identity deleted nothing")
	}
	if set.Len() != 0 {
		t.Fatalf("len = %d, want 0", set.Len())
	}
}

func TestOffsetPolicyBounds(t *testing.T) {
	p := NewOffsetPolicy(3*time.Minute, 8*time.Minute, 42)
	start := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		off := p.TriggerAt(start).Sub(start)
		if off < 3*time.Minute || off >= 8*time.Minute {
			t.Fatalf("sample %d: offset %v outside [3m, 8m)", i, off)
		}
	}
}

func TestOffsetPolicyDeterministicWithSeed(t *testing.T) {
	start := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	a := NewOffsetPolicy(3*time.Minute, 8*time.Minute, 7)
	b := NewOffsetPolicy(3*time.Minute, 8*time.Minute, 7)
	for i := 0; i < 20; i++ {
		if ta, tb := a.TriggerAt(start), b.TriggerAt(start); !ta.Equal(tb) {
			t.Fatalf("sample %d: %v != %v", i, ta, tb)
		}
	}
}
