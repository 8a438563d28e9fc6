package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"attendbot/internal/eventbus"
	"attendbot/internal/metrics"
	logx "attendbot/pkg/logx"
)

// Outcome is the result of one attendance attempt.
type Outcome struct {
	Satisfied bool
	Err       error
}

// Executor performs one attendance attempt end to end. Implementations
// must be safe for concurrent calls with distinct events.
type Executor interface {
	Perform(ctx context.Context, ev Event) Outcome
}

// FailurePolicy decides what happens to an event whose attempt failed.
type FailurePolicy string

const (
	// FailureDrop leaves the failed event removed. Default: the portal
	// window is short and a retried attempt usually lands too late anyway.
	FailureDrop FailurePolicy = "drop"
	// FailureRequeue reinserts the failed event with a fresh trigger time.
	FailureRequeue FailurePolicy = "requeue"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultGrace          = 30 * time.Second
	defaultRequeueBackoff = 2 * time.Minute
)

type Options struct {
	PollInterval   time.Duration
	Grace          time.Duration
	Policy         FailurePolicy
	RequeueBackoff time.Duration
	Logger         logx.Logger
	Bus            eventbus.Bus
	Run            *metrics.Run
}

// Scheduler owns the trigger loop: it watches the event set, sleeps until
// the earliest trigger, and dispatches one worker per due event.
type Scheduler struct {
	set  *EventSet
	exec Executor
	opts Options

	manual chan struct{}

	mu       sync.Mutex
	inflight map[Identity]struct{}
	wg       sync.WaitGroup
}

func New(set *EventSet, exec Executor, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.RequeueBackoff <= 0 {
		opts.RequeueBackoff = defaultRequeueBackoff
	}
	if opts.Policy == "" {
		opts.Policy = FailureDrop
	}
	return &Scheduler{
		set:      set,
		exec:     exec,
		opts:     opts,
		manual:   make(chan struct{}, 1),
		inflight: make(map[Identity]struct{}),
	}
}

// TriggerManual requests an immediate attempt on the earliest pending
// event. Requests arriving while one is already queued coalesce. Returns
// false when nothing is pending.
func (s *Scheduler) TriggerManual() bool {
	if s.set.Len() == 0 {
		s.opts.Logger.Warn("manual trigger ignored, no pending events")
		return false
	}
	select {
	case s.manual <- struct{}{}:
	default:
		// One request already queued; nothing to add.
	}
	return true
}

// Run drives the trigger loop until the set is exhausted or ctx is
// cancelled. Exhaustion is graceful: Run returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.opts.Logger
	log.Info("scheduler started",
		logx.Int("pending", s.set.Len()),
		logx.String("failure_policy", string(s.opts.Policy)))

	for {
		ev, ok := s.set.PeekEarliest()
		if !ok {
			if s.inflightCount() > 0 {
				// A requeue-on-failure may still grow the set.
				if err := s.sleep(ctx, s.opts.PollInterval); err != nil {
					s.drain()
					return err
				}
				continue
			}
			log.Info("all events handled, scheduler exhausted")
			s.drain()
			return nil
		}

		now := time.Now()
		if !now.Before(ev.TriggerAt) {
			s.set.Remove(ev.Identity())
			s.dispatch(ctx, ev, false)
			continue
		}

		wait := ev.TriggerAt.Sub(now)
		if wait > s.opts.PollInterval {
			wait = s.opts.PollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.drain()
			return ctx.Err()
		case <-s.manual:
			timer.Stop()
			log.Info("manual trigger", logx.String("event", ev.Name), logx.Time("start", ev.Start))
			s.set.Remove(ev.Identity())
			s.dispatch(ctx, ev, true)
		case <-timer.C:
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) inflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Scheduler) dispatch(ctx context.Context, ev Event, manual bool) {
	id := ev.Identity()
	s.mu.Lock()
	if _, busy := s.inflight[id]; busy {
		s.mu.Unlock()
		s.opts.Logger.Debug("attempt already in flight, skipping", logx.String("event", id.String()))
		return
	}
	s.inflight[id] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, id)
			s.mu.Unlock()
		}()
		s.attempt(ctx, ev, manual)
	}()
}

func (s *Scheduler) attempt(ctx context.Context, ev Event, manual bool) {
	log := s.opts.Logger
	started := time.Now()
	out := s.perform(ctx, ev)
	elapsed := time.Since(started)

	if s.opts.Run != nil {
		s.opts.Run.RecordAttempt(manual, out.Satisfied)
	}

	switch {
	case out.Satisfied:
		log.Info("attendance marked",
			logx.String("event", ev.Name),
			logx.Time("start", ev.Start),
			logx.Bool("manual", manual),
			logx.Duration("took", elapsed))
	default:
		log.Error("attendance attempt failed",
			logx.String("event", ev.Name),
			logx.Time("start", ev.Start),
			logx.Bool("manual", manual),
			logx.Err(out.Err))
		if s.opts.Policy == FailureRequeue && ctx.Err() == nil {
			ev.TriggerAt = time.Now().Add(s.opts.RequeueBackoff)
			if err := s.set.Add(ev); err == nil {
				log.Info("event requeued",
					logx.String("event", ev.Name),
					logx.Time("trigger_at", ev.TriggerAt))
			}
		}
	}

	if s.opts.Bus != nil {
		errText := ""
		if out.Err != nil {
			errText = out.Err.Error()
		}
		s.opts.Bus.Publish(eventbus.AttemptFinishedEvent(eventbus.AttemptFinished{
			Event:    ev.Name,
			Start:    ev.Start,
			Manual:   manual,
			Success:  out.Satisfied,
			Duration: elapsed,
			Err:      errText,
		}))
	}
}

// perform runs the executor with a panic barrier: a panicking attempt is
// a failed attempt, never a dead scheduler.
func (s *Scheduler) perform(ctx context.Context, ev Event) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Error("attempt panicked",
				logx.String("event", ev.Name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			out = Outcome{Satisfied: false, Err: fmt.Errorf("attempt panicked: %v", r)}
		}
	}()
	return s.exec.Perform(ctx, ev)
}

// drain waits up to Grace for in-flight attempts to finish.
func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.Grace):
		s.opts.Logger.Warn("shutdown grace elapsed with attempts still in flight",
			logx.Int("in_flight", s.inflightCount()))
	}
}
