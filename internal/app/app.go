// Package app wires the attendance bot together: config, logging,
// credentials, the calendar-backed event set, the trigger scheduler,
// and the optional storage/notifier/maintenance/pprof services.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"attendbot/internal/calendar"
	"attendbot/internal/config"
	"attendbot/internal/eventbus"
	"attendbot/internal/maintenance"
	"attendbot/internal/metrics"
	"attendbot/internal/notifier"
	"attendbot/internal/observability/pprof"
	"attendbot/internal/portal"
	"attendbot/internal/runtime/supervisor"
	"attendbot/internal/schedule"
	"attendbot/internal/storage"
	kit "attendbot/internal/transport"
	telegram "attendbot/internal/transport/telegram/adapter"
	"attendbot/internal/tui"
	logx "attendbot/pkg/logx"

	"attendbot/internal/creds"
)

// StopReason explains why the app is shutting down.
type StopReason string

const (
	StopSignal    StopReason = "signal"
	StopUserExit  StopReason = "user-exit"
	StopExhausted StopReason = "exhausted"
	StopFatal     StopReason = "fatal"
)

type App struct {
	cfgPath string
	cfgm    *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	run   *metrics.Run
	latch *metrics.Latch

	store storage.Store
	set   *schedule.EventSet
	sched *schedule.Scheduler
	notif *notifier.Service
	maint *maintenance.Service
	pprof *pprof.Service

	sup *supervisor.Supervisor

	notifyTarget kit.ChatTarget
	tuiOpts      tui.Options
	tuiEnabled   bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	run := metrics.NewRun()
	latch := metrics.NewLatch()

	// Credentials must resolve before anything touches the browser.
	credentials, err := creds.NewStore(cfg.Creds).Load()
	if err != nil {
		return nil, err
	}

	// Storage (optional).
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	// Calendar -> event set.
	icsPath, err := calendar.Discover(cfg.Calendar.Dir)
	if err != nil {
		return nil, err
	}
	horizon, err := config.ParseDurationOrDefault("calendar.horizon", cfg.Calendar.Horizon, 4320*time.Hour)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	raw, err := calendar.ParseFile(icsPath, now, horizon)
	if err != nil {
		return nil, err
	}
	raw = calendar.Filter(raw, now, cfg.Calendar.ExcludeMarker)

	policy, err := mapOffsetPolicy(cfg)
	if err != nil {
		return nil, err
	}
	set, err := schedule.Load(raw, now, policy)
	if err != nil {
		return nil, err
	}
	log.Info("calendar loaded",
		logx.String("file", icsPath),
		logx.Int("pending", set.Len()),
	)

	// Portal executor behind the scheduler.
	authCfg, err := mapAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	exec := portal.NewExecutor(cfg.Portal, cfg.Browser, authCfg, credentials, log.With(logx.String("comp", "portal")))

	opts, err := mapSchedulerOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.Logger = log.With(logx.String("comp", "scheduler"))
	opts.Bus = bus
	opts.Run = run
	sched := schedule.New(set, exec, opts)

	// Notifier (optional).
	var notif *notifier.Service
	var target kit.ChatTarget
	if cfg.Notifier != nil && cfg.Notifier.Enabled {
		ncfg, err := mapNotifierConfig(cfg)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{Token: cfg.Notifier.Token}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("%w: notifier: %v", config.ErrConfig, err)
		}
		target = kit.ChatTarget{ChatID: cfg.Notifier.ChatID}
		notif = notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)
	}

	// Maintenance (optional).
	var maint *maintenance.Service
	if cfg.Maintenance != nil && cfg.Maintenance.Enabled {
		mcfg, err := mapMaintenanceConfig(cfg)
		if err != nil {
			return nil, err
		}
		maint = maintenance.New(mcfg, log.With(logx.String("comp", "maintenance")))
	}

	pprofCfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprof.New(pprofCfg, log.With(logx.String("comp", "pprof")))

	tuiOpts, tuiEnabled, err := mapTUIOptions(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgPath:      cfgPath,
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		bus:          bus,
		run:          run,
		latch:        latch,
		store:        store,
		set:          set,
		sched:        sched,
		notif:        notif,
		maint:        maint,
		pprof:        pprofSvc,
		notifyTarget: target,
		tuiOpts:      tuiOpts,
		tuiEnabled:   tuiEnabled,
	}, nil
}

// Latch is the exit signal: set by the TUI quit key or by scheduler
// exhaustion.
func (a *App) Latch() *metrics.Latch { return a.latch }

// UI returns the dashboard model; ok is false when running headless.
func (a *App) UI() (tui.Model, bool) {
	if !a.tuiEnabled {
		return tui.Model{}, false
	}
	return tui.New(a.tuiOpts, a.run, a.latch, a.set, a.sched, a.logs.Buffer()), true
}

// Done is closed when the app run context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	if a.notif != nil && a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.pprof != nil && a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}
	if a.maint != nil && a.maint.Enabled() {
		if err := a.registerMaintenanceJobs(); err != nil {
			return err
		}
		a.maint.Start(a.sup.Context())
	}

	// Persist and announce finished attempts.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("attempts.sink", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.onEvent(c, e)
			}
		}
	})

	// The trigger loop. A clean return means every event was handled.
	a.sup.Go("scheduler.run", func(c context.Context) error {
		err := a.sched.Run(c)
		if err == nil {
			a.log.Info("all events handled, requesting exit")
			a.latch.Set()
		}
		return err
	})

	// Config hot-reload: logging/notifier/pprof apply live; calendar and
	// scheduler changes need a restart.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) onEvent(ctx context.Context, e eventbus.Event) {
	fin, ok := eventbus.AttemptFinishedFrom(e)
	if !ok {
		return
	}

	if a.store != nil {
		rec := storage.AttemptRecord{
			At:      e.Time,
			Event:   fin.Event,
			Start:   fin.Start,
			Manual:  fin.Manual,
			Success: fin.Success,
			TookMS:  fin.Duration.Milliseconds(),
			Error:   fin.Err,
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.store.AppendAttempt(cctx, rec); err != nil {
			a.log.Warn("failed to persist attempt", logx.Err(err))
		}
		cancel()
	}

	if a.notif != nil && a.notif.Enabled() {
		n := kit.Notification{
			Channel: "attempt",
			Target:  a.notifyTarget,
			Text:    attemptText(fin),
		}
		if !fin.Success {
			n.Priority = 7
		}
		if err := a.notif.Notify(ctx, n); err != nil {
			a.log.Debug("attempt notification not queued", logx.Err(err))
		}
	}
}

func attemptText(fin eventbus.AttemptFinished) string {
	kind := ""
	if fin.Manual {
		kind = " (manual)"
	}
	if fin.Success {
		return fmt.Sprintf("✅ attendance marked for %s%s", fin.Event, kind)
	}
	return fmt.Sprintf("❌ attempt failed for %s%s: %s", fin.Event, kind, fin.Err)
}

func (a *App) registerMaintenanceJobs() error {
	cfg := a.cfgm.Get()
	mc := cfg.Maintenance

	if strings.TrimSpace(mc.RefreshAt) != "" {
		if strings.TrimSpace(cfg.Calendar.SourceURL) == "" {
			return fmt.Errorf("%w: maintenance.refresh_at needs calendar.source_url", config.ErrConfig)
		}
		if err := a.maint.AddDaily("calendar.refresh", mc.RefreshAt, 0, a.refreshCalendar); err != nil {
			return err
		}
	}

	if a.store != nil {
		every, err := config.ParseDurationOrDefault("maintenance.prune_every", mc.PruneEvery, 24*time.Hour)
		if err != nil {
			return err
		}
		maxAge, err := config.ParseDurationOrDefault("storage.max_age", cfg.Storage.MaxAge, 2160*time.Hour)
		if err != nil {
			return err
		}
		maxRecords := cfg.Storage.MaxRecords
		if err := a.maint.AddInterval("storage.prune", every, 0, func(c context.Context) error {
			dropped, err := a.store.Prune(c, maxAge, maxRecords)
			if err != nil {
				return err
			}
			if dropped > 0 {
				a.log.Info("pruned attempt history", logx.Int("dropped", dropped))
			}
			return nil
		}); err != nil {
			return err
		}
	}

	if strings.TrimSpace(mc.SummaryAt) != "" && a.notif != nil {
		if err := a.maint.AddDaily("daily.summary", mc.SummaryAt, 0, func(c context.Context) error {
			snap := a.run.Snapshot()
			ev, pending := a.set.PeekEarliest()
			next := "none"
			if pending {
				next = fmt.Sprintf("%s at %s", ev.Name, ev.TriggerAt.Format("Mon 15:04"))
			}
			return a.notif.Notify(c, kit.Notification{
				Channel: "summary",
				Target:  a.notifyTarget,
				Text: fmt.Sprintf("📋 daily summary: %d attempted, %d ok, %d failed, %d pending. Next: %s",
					snap.Attempted, snap.Succeeded, snap.Failed, a.set.Len(), next),
			})
		}); err != nil {
			return err
		}
	}

	return nil
}

// refreshCalendar re-downloads the timetable and merges newly appeared
// events into the live set. Existing identities are left untouched.
func (a *App) refreshCalendar(ctx context.Context) error {
	cfg := a.cfgm.Get()
	if err := calendar.Download(ctx, cfg.Calendar.SourceURL, cfg.Calendar.Dir, cfg.Calendar.InsecureSkipVerify); err != nil {
		return err
	}

	path, err := calendar.Discover(cfg.Calendar.Dir)
	if err != nil {
		return err
	}
	horizon, err := config.ParseDurationOrDefault("calendar.horizon", cfg.Calendar.Horizon, 4320*time.Hour)
	if err != nil {
		return err
	}
	now := time.Now()
	raw, err := calendar.ParseFile(path, now, horizon)
	if err != nil {
		return err
	}
	raw = calendar.Filter(raw, now, cfg.Calendar.ExcludeMarker)

	policy, err := mapOffsetPolicy(cfg)
	if err != nil {
		return err
	}

	added := 0
	for _, ev := range raw {
		if !ev.Start.After(now) {
			continue
		}
		err := a.set.Add(schedule.Event{
			Name:      ev.Name,
			Start:     ev.Start,
			End:       ev.End,
			TriggerAt: policy.TriggerAt(ev.Start),
		})
		if err == nil {
			added++
		}
	}

	next, _ := a.set.PeekEarliest()
	a.bus.Publish(eventbus.ScheduleRefreshedEvent(eventbus.ScheduleRefreshed{
		Pending: a.set.Len(),
		NextAt:  next.TriggerAt,
	}))
	a.log.Info("calendar refreshed", logx.Int("added", added), logx.Int("pending", a.set.Len()))
	return nil
}

func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	if newCfg == nil {
		return
	}

	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	for _, s := range sections {
		switch s {
		case "calendar", "portal", "auth", "creds", "browser", "scheduler", "storage":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if a.notif != nil {
		ncfg, err := mapNotifierConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			prev := a.notif.Enabled()
			a.notif.Apply(ncfg)
			if prev && !ncfg.Enabled {
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			} else if !prev && ncfg.Enabled {
				a.notif.Start(ctx)
			}
		}
	}

	ppc, err := mapPprofConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else {
		a.pprof.Reconfigure(ctx, ppc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so the scheduler and background loops start
	// unwinding immediately; the scheduler then drains in-flight attempts
	// within its grace window.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("maintenance", 2*time.Second, func(c context.Context) error {
		if a.maint != nil {
			a.maint.Stop(c)
		}
		return nil
	})
	step("pprof", time.Second, func(c context.Context) error {
		if a.pprof != nil {
			a.pprof.Stop(c)
		}
		return nil
	})
	step("notifier", 2*time.Second, func(c context.Context) error {
		if a.notif != nil {
			a.notif.Stop(c)
		}
		return nil
	})
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 35*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped",
		logx.Int64("attempted", a.run.Snapshot().Attempted),
		logx.Int64("succeeded", a.run.Snapshot().Succeeded),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
