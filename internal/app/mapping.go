package app

import (
	"fmt"
	"strings"
	"time"

	"attendbot/internal/auth"
	"attendbot/internal/config"
	"attendbot/internal/maintenance"
	"attendbot/internal/notifier"
	"attendbot/internal/observability/pprof"
	"attendbot/internal/schedule"
	"attendbot/internal/storage"
	"attendbot/internal/tui"
	logx "attendbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapAuthConfig(cfg *config.Config) (auth.Config, error) {
	maxWait, err := config.ParseDurationOrDefault("auth.max_wait", cfg.Auth.MaxWait, 30*time.Minute)
	if err != nil {
		return auth.Config{}, err
	}
	poll, err := config.ParseDurationOrDefault("auth.poll_interval", cfg.Auth.PollInterval, 10*time.Second)
	if err != nil {
		return auth.Config{}, err
	}
	pushWait, err := config.ParseDurationOrDefault("auth.push_wait", cfg.Auth.PushWait, 90*time.Second)
	if err != nil {
		return auth.Config{}, err
	}
	retryDelay, err := config.ParseDurationOrDefault("auth.retry_delay", cfg.Auth.RetryDelay, 2*time.Second)
	if err != nil {
		return auth.Config{}, err
	}
	return auth.Config{
		MaxWait:      maxWait,
		PollInterval: poll,
		PushWait:     pushWait,
		PreferOTP:    cfg.Auth.PreferOTP,
		StepRetries:  cfg.Auth.StepRetries,
		RetryDelay:   retryDelay,
	}, nil
}

func mapSchedulerOptions(cfg *config.Config) (schedule.Options, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 60*time.Second)
	if err != nil {
		return schedule.Options{}, err
	}
	grace, err := config.ParseDurationOrDefault("scheduler.grace", cfg.Scheduler.Grace, 30*time.Second)
	if err != nil {
		return schedule.Options{}, err
	}
	backoff, err := config.ParseDurationOrDefault("scheduler.requeue_backoff", cfg.Scheduler.RequeueBackoff, 10*time.Minute)
	if err != nil {
		return schedule.Options{}, err
	}
	policy := schedule.FailureDrop
	if strings.EqualFold(strings.TrimSpace(cfg.Scheduler.FailurePolicy), "requeue") {
		policy = schedule.FailureRequeue
	}
	return schedule.Options{
		PollInterval:   poll,
		Grace:          grace,
		Policy:         policy,
		RequeueBackoff: backoff,
	}, nil
}

func mapOffsetPolicy(cfg *config.Config) (*schedule.OffsetPolicy, error) {
	min, err := config.ParseDurationOrDefault("scheduler.offset_min", cfg.Scheduler.OffsetMin, schedule.DefaultOffsetMin)
	if err != nil {
		return nil, err
	}
	max, err := config.ParseDurationOrDefault("scheduler.offset_max", cfg.Scheduler.OffsetMax, schedule.DefaultOffsetMax)
	if err != nil {
		return nil, err
	}
	return schedule.NewOffsetPolicy(min, max, cfg.Scheduler.Seed), nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{}, nil
	}
	nc := cfg.Notifier
	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:     nc.Enabled,
		Workers:     nc.Workers,
		QueueSize:   nc.QueueSize,
		RatePerSec:  nc.RatePerSec,
		RetryMax:    nc.RetryMax,
		RetryBase:   retryBase,
		DedupWindow: dedup,
	}, nil
}

func mapMaintenanceConfig(cfg *config.Config) (maintenance.Config, error) {
	if cfg.Maintenance == nil {
		return maintenance.Config{}, nil
	}
	mc := cfg.Maintenance
	timeout, err := config.ParseDurationOrDefault("maintenance.job_timeout", mc.JobTimeout, 5*time.Minute)
	if err != nil {
		return maintenance.Config{}, err
	}
	return maintenance.Config{
		Enabled:    mc.Enabled,
		Timezone:   mc.Timezone,
		JobTimeout: timeout,
	}, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	pc := cfg.Pprof
	read, err := config.ParseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("pprof.write_timeout", pc.WriteTimeout, 0)
	if err != nil {
		return pprof.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, 60*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       pc.Enabled,
		Addr:          pc.Addr,
		Prefix:        pc.Prefix,
		Token:         pc.Token,
		AllowInsecure: pc.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapTUIOptions(cfg *config.Config) (tui.Options, bool, error) {
	enabled := true
	if cfg.TUI.Enabled != nil {
		enabled = *cfg.TUI.Enabled
	}
	arm, err := config.ParseDurationOrDefault("tui.arm_window", cfg.TUI.ArmWindow, 1500*time.Millisecond)
	if err != nil {
		return tui.Options{}, false, err
	}
	return tui.Options{ArmWindow: arm, LogLines: cfg.TUI.LogLines}, enabled, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Buffer: logx.BufferConfig{
			Enabled: cfg.Logging.Buffer.Enabled,
			Lines:   cfg.Logging.Buffer.Lines,
		},
	}
}
