package config

type Config struct {
	Calendar  CalendarConfig  `json:"calendar"`
	Portal    PortalConfig    `json:"portal"`
	Auth      AuthConfig      `json:"auth"`
	Creds     CredsConfig     `json:"creds"`
	Browser   BrowserConfig   `json:"browser"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	TUI       TUIConfig       `json:"tui"`

	Storage     *StorageConfig     `json:"storage,omitempty"`
	Notifier    *NotifierConfig    `json:"notifier,omitempty"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
	Pprof       PprofConfig        `json:"pprof,omitempty"`
}

// CalendarConfig controls where the timetable comes from.
//
// Exactly one .ics file must exist in Dir at startup; zero or multiple is a
// fatal configuration error.
type CalendarConfig struct {
	Dir string `json:"dir,omitempty"` // default: "./ics"

	// ExcludeMarker drops events whose name contains this substring.
	ExcludeMarker string `json:"exclude_marker,omitempty"` // default: "Optional Attendance"

	// Horizon bounds recurrence expansion (Go duration string).
	Horizon string `json:"horizon,omitempty"` // default: "4320h" (~6 months)

	// SourceURL, when set, lets the maintenance job re-download the .ics.
	SourceURL string `json:"source_url,omitempty"`
	// The campus timetable host serves a broken certificate chain.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// PortalConfig identifies the attendance page and its signal elements.
// Element ids track the current portal revision; override after a redesign.
type PortalConfig struct {
	PageURL     string `json:"page_url"`
	ExpectedURL string `json:"expected_url,omitempty"` // default: PageURL

	// AttendingBlockID is the element whose aria-hidden attribute flips to
	// "false" once attendance is marked.
	AttendingBlockID string `json:"attending_block_id,omitempty"`

	// ButtonIDs are candidate mark-attendance controls, tried in order.
	ButtonIDs []string `json:"button_ids,omitempty"`

	// LoadTimeout is a Go duration string for the page-ready wait.
	LoadTimeout string `json:"load_timeout,omitempty"` // default: "30s"
}

// AuthConfig tunes the login state machine.
// All durations are Go duration strings.
type AuthConfig struct {
	MaxWait      string `json:"max_wait,omitempty"`      // default: "30m"
	PollInterval string `json:"poll_interval,omitempty"` // default: "10s"

	// PushWait bounds waiting for an authenticator push approval before
	// falling back to a one-time code.
	PushWait string `json:"push_wait,omitempty"` // default: "90s"
	// PreferOTP skips the push wait and goes straight to the code entry.
	PreferOTP bool `json:"prefer_otp,omitempty"`

	StepRetries int    `json:"step_retries,omitempty"` // default: 3
	RetryDelay  string `json:"retry_delay,omitempty"`  // default: "2s"
}

// CredsConfig locates stored credentials.
//
// SecretBackend values:
//   - "file": read the TOTP secret from SecretFile
//   - "keyring": read it from the OS keyring
type CredsConfig struct {
	CredentialsFile string `json:"credentials_file,omitempty"` // default: "./credentials.json"
	SecretFile      string `json:"secret_file,omitempty"`      // default: "./authenticator.json"
	SecretBackend   string `json:"secret_backend,omitempty"`   // default: "file"
	KeyringService  string `json:"keyring_service,omitempty"`  // default: "attendbot"
}

type BrowserConfig struct {
	UserDataDir string `json:"user_data_dir,omitempty"` // default: "./chrome_user_data"
	Headless    bool   `json:"headless,omitempty"`
	NoSandbox   bool   `json:"no_sandbox,omitempty"`
	// PageTimeout is a Go duration string applied to individual page operations.
	PageTimeout string `json:"page_timeout,omitempty"` // default: "20s"
}

// SchedulerConfig controls trigger timing and failure policy.
//
// FailurePolicy values:
//   - "drop": a failed attempt forfeits the event (matches the original bot)
//   - "requeue": re-insert with RequeueBackoff added to the trigger time
type SchedulerConfig struct {
	// OffsetMin/OffsetMax bound the randomized delay past event start.
	OffsetMin string `json:"offset_min,omitempty"` // default: "3m"
	OffsetMax string `json:"offset_max,omitempty"` // default: "8m"

	// PollInterval caps a single scheduler sleep so cancellation is observed.
	PollInterval string `json:"poll_interval,omitempty"` // default: "60s"

	// Grace bounds waiting for in-flight workers at shutdown.
	Grace string `json:"grace,omitempty"` // default: "30s"

	FailurePolicy  string `json:"failure_policy,omitempty"`  // default: "drop"
	RequeueBackoff string `json:"requeue_backoff,omitempty"` // default: "10m"

	// Seed fixes the trigger-offset RNG; 0 seeds from the clock.
	Seed int64 `json:"seed,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Buffer  LoggingBuffer `json:"buffer"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingBuffer feeds the dashboard's rolling log window.
type LoggingBuffer struct {
	Enabled bool `json:"enabled"`
	Lines   int  `json:"lines,omitempty"` // default: 5
}

type TUIConfig struct {
	// Enabled is a pointer so "omitted" defaults to true while an explicit
	// false runs headless.
	Enabled *bool `json:"enabled,omitempty"`

	// ArmWindow is how long the '[' key arms the manual-trigger chord.
	ArmWindow string `json:"arm_window,omitempty"` // default: "1500ms"

	LogLines int `json:"log_lines,omitempty"` // default: 5
}

// StorageConfig controls the optional attempt-history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./attendbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// Prune bounds, enforced by the maintenance job.
	MaxAge     string `json:"max_age,omitempty"` // default: "2160h" (~90 days)
	MaxRecords int    `json:"max_records,omitempty"`
}

// NotifierConfig controls the async outcome-notification pipeline.
// Disabled unless a token and chat id are set.
type NotifierConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"`
	// DedupWindow suppresses identical messages within the window.
	DedupWindow string `json:"dedup_window,omitempty"`
}

// MaintenanceConfig schedules periodic background jobs.
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ; default: local

	// RefreshAt re-downloads the calendar daily at HH:MM (needs calendar.source_url).
	RefreshAt string `json:"refresh_at,omitempty"`
	// SummaryAt sends a daily summary notification at HH:MM.
	SummaryAt string `json:"summary_at,omitempty"`
	// PruneEvery runs storage pruning on an interval (Go duration string).
	PruneEvery string `json:"prune_every,omitempty"` // default: "24h"

	// JobTimeout bounds each job run.
	JobTimeout string `json:"job_timeout,omitempty"` // default: "5m"
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
