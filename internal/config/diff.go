package config

import (
	"reflect"
	"strings"

	logx "attendbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// safe structured attrs for logging. Secrets (tokens, paths to secret
// files) are never included in the attrs.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar) {
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.String("calendar.dir", newCfg.Calendar.Dir),
			logx.String("calendar.horizon", newCfg.Calendar.Horizon),
		)
	}

	if !reflect.DeepEqual(oldCfg.Portal, newCfg.Portal) {
		changed = append(changed, "portal")
		attrs = append(attrs, logx.String("portal.page_url", newCfg.Portal.PageURL))
	}

	if !reflect.DeepEqual(oldCfg.Auth, newCfg.Auth) {
		changed = append(changed, "auth")
		attrs = append(attrs,
			logx.String("auth.max_wait", newCfg.Auth.MaxWait),
			logx.Bool("auth.prefer_otp", newCfg.Auth.PreferOTP),
		)
	}

	if !reflect.DeepEqual(oldCfg.Creds, newCfg.Creds) {
		changed = append(changed, "creds")
		// no attrs: everything in this section is sensitive
	}

	if !reflect.DeepEqual(oldCfg.Browser, newCfg.Browser) {
		changed = append(changed, "browser")
		attrs = append(attrs, logx.Bool("browser.headless", newCfg.Browser.Headless))
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.failure_policy", newCfg.Scheduler.FailurePolicy),
			logx.String("scheduler.offset_min", newCfg.Scheduler.OffsetMin),
			logx.String("scheduler.offset_max", newCfg.Scheduler.OffsetMax),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", strings.TrimSpace(newCfg.Logging.Level)),
			logx.Bool("logging.console", newCfg.Logging.Console),
		)
	}

	if !reflect.DeepEqual(oldCfg.TUI, newCfg.TUI) {
		changed = append(changed, "tui")
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}

	if notifierChanged(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if newCfg.Notifier != nil {
			attrs = append(attrs, logx.Bool("notifier.enabled", newCfg.Notifier.Enabled))
		}
	}

	if !reflect.DeepEqual(oldCfg.Maintenance, newCfg.Maintenance) {
		changed = append(changed, "maintenance")
	}

	if pprofChanged(oldCfg.Pprof, newCfg.Pprof) {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", newCfg.Pprof.Addr),
		)
	}

	return changed, attrs
}

// notifierChanged compares everything except the token, which may be
// re-pasted without an effective change.
func notifierChanged(a, b *NotifierConfig) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	if a == nil {
		return false
	}
	ac, bc := *a, *b
	ac.Token, bc.Token = "", ""
	if ac != bc {
		return true
	}
	return strings.TrimSpace(a.Token) != strings.TrimSpace(b.Token)
}

func pprofChanged(a, b PprofConfig) bool {
	ac, bc := a, b
	ac.Token, bc.Token = "", ""
	if ac != bc {
		return true
	}
	return strings.TrimSpace(a.Token) != strings.TrimSpace(b.Token)
}
