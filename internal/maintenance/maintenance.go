// Package maintenance runs periodic background jobs on a cron schedule:
// the daily calendar re-download, storage pruning, and the daily summary.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "attendbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/London"

	// JobTimeout bounds each job run.
	JobTimeout time.Duration
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type jobDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	run     func(ctx context.Context) error
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	queue  chan jobDef
	stopCh chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.queue = make(chan jobDef, 64)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for _, d := range s.defs {
		s.addCronLocked(d)
	}

	go s.worker(ctx)
	s.c.Start()
	s.log.Info("maintenance started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		stopped := s.c.Stop().Done()
		select {
		case <-stopped:
		case <-ctx.Done():
		}
		s.c = nil
	}
	s.log.Info("maintenance stopped")
}

// AddCron registers a job on a standard 5-field cron spec.
// Jobs registered before Start are scheduled when Start runs.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	d := jobDef{name: name, spec: spec, timeout: s.resolveTimeout(timeout), run: job}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
	}
	return nil
}

// AddInterval registers a job that runs every fixed interval.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) error {
	if every <= 0 {
		return errors.New("interval must be positive")
	}
	return s.AddCron(name, fmt.Sprintf("@every %s", every.String()), timeout, job)
}

// AddDaily registers a job that runs daily at HH:MM in the service timezone.
func (s *Service) AddDaily(name string, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) error {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

func (s *Service) addCronLocked(d jobDef) {
	_, _ = s.c.AddFunc(d.spec, func() {
		select {
		case s.queue <- d:
		default:
			s.log.Warn("maintenance queue full, dropping job", logx.String("job", d.name))
		}
	})
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	if s.cfg.JobTimeout > 0 {
		return s.cfg.JobTimeout
	}
	return 5 * time.Minute
}

func (s *Service) worker(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	q := s.queue
	s.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case d := <-q:
			s.runOne(ctx, d)
		}
	}
}

func (s *Service) runOne(ctx context.Context, d jobDef) {
	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := d.run(runCtx)

	item := HistoryItem{Name: d.name, Started: start, Duration: time.Since(start)}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed", logx.String("job", d.name), logx.Err(err))
	} else {
		s.log.Info("job ok", logx.String("job", d.name), logx.Duration("took", item.Duration))
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

// History returns recent job runs, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

// ParseHHMM parses a wall-clock time of day like "06:30".
func ParseHHMM(v string) (hour int, minute int, err error) {
	v = strings.TrimSpace(v)
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h, m, nil
}
