package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ApplyDefaults fills zero-valued fields in place. Runs on every parse
// so the rest of the program never re-checks for empty selectors or
// paths.
func (c *Config) ApplyDefaults() {
	if c.Calendar.Dir == "" {
		c.Calendar.Dir = "./ics"
	}
	if c.Calendar.ExcludeMarker == "" {
		c.Calendar.ExcludeMarker = "Optional Attendance"
	}
	if c.Calendar.Horizon == "" {
		c.Calendar.Horizon = "4320h"
	}

	if c.Portal.ExpectedURL == "" {
		c.Portal.ExpectedURL = c.Portal.PageURL
	}
	if c.Portal.AttendingBlockID == "" {
		c.Portal.AttendingBlockID = "pbid-blockFoundHappeningNowAttending"
	}
	if len(c.Portal.ButtonIDs) == 0 {
		c.Portal.ButtonIDs = []string{
			"pbid-buttonFoundHappeningNowButtonsTwoHere",
			"pbid-buttonFoundHappeningNowButtonsOneHere",
		}
	}
	if c.Portal.LoadTimeout == "" {
		c.Portal.LoadTimeout = "30s"
	}

	if c.Creds.CredentialsFile == "" {
		c.Creds.CredentialsFile = "./credentials.json"
	}
	if c.Creds.SecretFile == "" {
		c.Creds.SecretFile = "./authenticator.json"
	}
	if c.Creds.SecretBackend == "" {
		c.Creds.SecretBackend = "file"
	}
	if c.Creds.KeyringService == "" {
		c.Creds.KeyringService = "attendbot"
	}

	if c.Browser.UserDataDir == "" {
		c.Browser.UserDataDir = "./chrome_user_data"
	}

	if c.Scheduler.FailurePolicy == "" {
		c.Scheduler.FailurePolicy = "drop"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Storage != nil && c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
}

// Validate is the manager's validation hook: it rejects configs that
// could not possibly run, without touching the filesystem.
func Validate(_ context.Context, c *Config) error {
	if c.Portal.PageURL == "" {
		return fmt.Errorf("%w: portal.page_url is required", ErrConfig)
	}
	if _, err := url.ParseRequestURI(c.Portal.PageURL); err != nil {
		return fmt.Errorf("%w: portal.page_url: %v", ErrConfig, err)
	}

	for path, raw := range map[string]string{
		"calendar.horizon":          c.Calendar.Horizon,
		"portal.load_timeout":       c.Portal.LoadTimeout,
		"auth.max_wait":             c.Auth.MaxWait,
		"auth.poll_interval":        c.Auth.PollInterval,
		"auth.push_wait":            c.Auth.PushWait,
		"auth.retry_delay":          c.Auth.RetryDelay,
		"browser.page_timeout":      c.Browser.PageTimeout,
		"scheduler.offset_min":      c.Scheduler.OffsetMin,
		"scheduler.offset_max":      c.Scheduler.OffsetMax,
		"scheduler.poll_interval":   c.Scheduler.PollInterval,
		"scheduler.grace":           c.Scheduler.Grace,
		"scheduler.requeue_backoff": c.Scheduler.RequeueBackoff,
		"tui.arm_window":            c.TUI.ArmWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	switch c.Scheduler.FailurePolicy {
	case "", "drop", "requeue":
	default:
		return fmt.Errorf("%w: scheduler.failure_policy must be drop or requeue", ErrConfig)
	}

	switch c.Creds.SecretBackend {
	case "", "file", "keyring":
	default:
		return fmt.Errorf("%w: creds.secret_backend must be file or keyring", ErrConfig)
	}

	if c.Storage != nil {
		switch c.Storage.Driver {
		case "", "file", "sqlite", "none":
		default:
			return fmt.Errorf("%w: storage.driver must be file, sqlite or none", ErrConfig)
		}
		if c.Storage.Driver != "none" && c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for driver %q", ErrConfig, c.Storage.Driver)
		}
	}

	if c.Notifier != nil && c.Notifier.Enabled {
		if strings.TrimSpace(c.Notifier.Token) == "" || c.Notifier.ChatID == 0 {
			return fmt.Errorf("%w: notifier.token and notifier.chat_id are required when enabled", ErrConfig)
		}
	}

	if c.Maintenance != nil && c.Maintenance.Enabled {
		for path, hhmm := range map[string]string{
			"maintenance.refresh_at": c.Maintenance.RefreshAt,
			"maintenance.summary_at": c.Maintenance.SummaryAt,
		} {
			if hhmm == "" {
				continue
			}
			if err := validateHHMM(hhmm); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
			}
		}
	}
	return nil
}

func validateHHMM(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return fmt.Errorf("want HH:MM, got %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("want HH:MM, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("out of range: %q", s)
	}
	return nil
}
