package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"attendbot/internal/eventbus"
	"attendbot/internal/metrics"
	logx "attendbot/pkg/logx"
)

type fakeExecutor struct {
	mu        sync.Mutex
	performed []Event
	outcome   func(ev Event) Outcome
}

func (f *fakeExecutor) Perform(_ context.Context, ev Event) Outcome {
	f.mu.Lock()
	f.performed = append(f.performed, ev)
	f.mu.Unlock()
	if f.outcome != nil {
		return f.outcome(ev)
	}
	return Outcome{Satisfied: true}
}

func (f *fakeExecutor) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.performed))
	for i, ev := range f.performed {
		out[i] = ev.Name
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testSet(events ...Event) *EventSet {
	s := &EventSet{events: append([]Event(nil), events...)}
	s.sortLocked()
	return s
}

func TestRunDispatchesInTriggerOrder(t *testing.T) {
	now := time.Now()
	// B triggers before A even though A starts first.
	a := Event{Name: "A", Start: now.Add(-time.Minute), TriggerAt: now.Add(60 * time.Millisecond)}
	b := Event{Name: "B", Start: now, TriggerAt: now.Add(10 * time.Millisecond)}
	set := testSet(a, b)
	exec := &fakeExecutor{}
	s := New(set, exec, Options{Logger: logx.Nop(), PollInterval: 10 * time.Millisecond, Grace: time.Second})

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := exec.names()
	if len(got) != 2 || got[0] != "B" || got[1] != "A" {
		t.Fatalf("dispatch order = %v, want [B A]", got)
	}
	if set.Len() != 0 {
		t.Fatalf("set len = %d after run", set.Len())
	}
}

func TestRunEmptySetReturnsNil(t *testing.T) {
	s := New(testSet(), &fakeExecutor{}, Options{Logger: logx.Nop()})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

func TestRunCancelInterruptsLongSleep(t *testing.T) {
	now := time.Now()
	ev := Event{Name: "Far", Start: now.Add(time.Hour), TriggerAt: now.Add(2 * time.Hour)}
	s := New(testSet(ev), &fakeExecutor{}, Options{
		Logger:       logx.Nop(),
		PollInterval: time.Minute,
		Grace:        time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly after cancel")
	}
}

func TestFailureDropLeavesEventRemoved(t *testing.T) {
	now := time.Now()
	ev := Event{Name: "Lecture", Start: now, TriggerAt: now.Add(5 * time.Millisecond)}
	set := testSet(ev)
	exec := &fakeExecutor{outcome: func(Event) Outcome {
		return Outcome{Satisfied: false, Err: errors.New("portal down")}
	}}
	run := metrics.NewRun()
	s := New(set, exec, Options{Logger: logx.Nop(), PollInterval: 10 * time.Millisecond, Grace: time.Second, Run: run})

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if set.Len() != 0 {
		t.Fatal("failed event still pending under drop policy")
	}
	snap := run.Snapshot()
	if snap.Succeeded != 0 || snap.Failed != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestFailureRequeueReinserts(t *testing.T) {
	now := time.Now()
	ev := Event{Name: "Lecture", Start: now, TriggerAt: now.Add(5 * time.Millisecond)}
	set := testSet(ev)

	var calls int
	var mu sync.Mutex
	exec := &fakeExecutor{outcome: func(Event) Outcome {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return Outcome{Satisfied: false, Err: errors.New("transient")}
		}
		return Outcome{Satisfied: true}
	}}
	s := New(set, exec, Options{
		Logger:         logx.Nop(),
		PollInterval:   10 * time.Millisecond,
		Grace:          time.Second,
		Policy:         FailureRequeue,
		RequeueBackoff: 30 * time.Millisecond,
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (failure then requeued success)", calls)
	}
	if set.Len() != 0 {
		t.Fatal("event still pending after successful retry")
	}
}

func TestManualTriggerDispatchesEarliestEarly(t *testing.T) {
	now := time.Now()
	ev := Event{Name: "Lecture", Start: now.Add(time.Hour), TriggerAt: now.Add(2 * time.Hour)}
	set := testSet(ev)
	exec := &fakeExecutor{}
	s := New(set, exec, Options{Logger: logx.Nop(), PollInterval: time.Minute, Grace: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { _ = s.Run(ctx); close(done) }()

	time.Sleep(20 * time.Millisecond)
	if !s.TriggerManual() {
		t.Fatal("TriggerManual returned false with a pending event")
	}
	waitFor(t, 2*time.Second, func() bool { return len(exec.names()) == 1 })

	// The set is now empty, so the loop exits on its own.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after the manual dispatch emptied the set")
	}
}

func TestManualTriggerEmptySetIsNoop(t *testing.T) {
	s := New(testSet(), &fakeExecutor{}, Options{Logger: logx.Nop()})
	if s.TriggerManual() {
		t.Fatal("TriggerManual returned true with an empty set")
	}
}

func TestPanickingExecutorYieldsFailedOutcome(t *testing.T) {
	now := time.Now()
	ev := Event{Name: "Lecture", Start: now, TriggerAt: now.Add(5 * time.Millisecond)}
	set := testSet(ev)
	exec := &fakeExecutor{outcome: func(Event) Outcome { panic("selector vanished") }}
	run := metrics.NewRun()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(set, exec, Options{Logger: logx.Nop(), PollInterval: 10 * time.Millisecond, Grace: time.Second, Run: run, Bus: bus})
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := run.Snapshot().Failed; got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
	select {
	case e := <-events:
		fin, ok := e.Data.(eventbus.AttemptFinished)
		if !ok || fin.Success || fin.Err == "" {
			t.Fatalf("unexpected bus event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no attempt.finished event published")
	}
}
