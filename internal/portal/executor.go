// Package portal performs the actual attendance marking on the student
// portal page: inspect the happening-now block, click the check-in
// button, confirm the post-condition.
package portal

import (
	"context"
	"fmt"
	"time"

	"attendbot/internal/auth"
	"attendbot/internal/browser"
	"attendbot/internal/config"
	"attendbot/internal/schedule"
	logx "attendbot/pkg/logx"
)

// Driver is the page surface the executor needs beyond the login flow.
type Driver interface {
	auth.Driver
	WaitPresent(ctx context.Context, loc auth.Locator, timeout time.Duration) error
	Attribute(ctx context.Context, loc auth.Locator, name string) (string, error)
}

// Authenticator abstracts the login flow so the executor is testable
// without a state machine.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context, creds auth.Credentials, dest string) (bool, error)
}

// Executor opens a fresh browser session per attempt and marks
// attendance for the event it is handed.
type Executor struct {
	cfg     config.PortalConfig
	browser config.BrowserConfig
	authCfg auth.Config
	creds   auth.Credentials
	log     logx.Logger

	// openSession and newAuth are swappable seams for tests; production
	// wiring uses the rod session and the real state machine.
	openSession func(ctx context.Context) (Driver, func(), error)
	newAuth     func(d Driver) Authenticator
}

func NewExecutor(cfg config.PortalConfig, browserCfg config.BrowserConfig, authCfg auth.Config, creds auth.Credentials, log logx.Logger) *Executor {
	e := &Executor{
		cfg:     cfg,
		browser: browserCfg,
		authCfg: authCfg,
		creds:   creds,
		log:     log,
	}
	e.openSession = func(ctx context.Context) (Driver, func(), error) {
		s, err := browser.Open(ctx, browserCfg, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	e.newAuth = func(d Driver) Authenticator {
		return auth.NewMachine(d, authCfg, log)
	}
	return e
}

// Perform runs one attendance attempt. The session is always closed on
// the way out, whatever path the attempt takes.
func (e *Executor) Perform(ctx context.Context, ev schedule.Event) schedule.Outcome {
	log := e.log.With(logx.String("event", ev.Name), logx.Time("start", ev.Start))

	drv, closeSession, err := e.openSession(ctx)
	if err != nil {
		return schedule.Outcome{Err: fmt.Errorf("open session: %w", err)}
	}
	defer closeSession()

	if err := drv.Navigate(ctx, e.cfg.PageURL); err != nil {
		return schedule.Outcome{Err: err}
	}
	log.Info("opened attendance page")

	ok, err := e.newAuth(drv).EnsureAuthenticated(ctx, e.creds, e.cfg.ExpectedURL)
	if err != nil {
		return schedule.Outcome{Err: fmt.Errorf("login: %w", err)}
	}
	if !ok {
		return schedule.Outcome{Err: fmt.Errorf("login not confirmed")}
	}

	loadTimeout, err := config.ParseDurationOrDefault("portal.load_timeout", e.cfg.LoadTimeout, 30*time.Second)
	if err != nil {
		return schedule.Outcome{Err: err}
	}
	block := auth.Locator{Strategy: auth.ByID, Selector: e.cfg.AttendingBlockID, Label: "attending block"}
	if err := drv.WaitPresent(ctx, block, loadTimeout); err != nil {
		return schedule.Outcome{Err: fmt.Errorf("attendance page did not load: %w", err)}
	}

	marked, err := e.alreadyMarked(ctx, drv, block)
	if err != nil {
		return schedule.Outcome{Err: err}
	}
	if marked {
		log.Info("attendance already marked")
		return schedule.Outcome{Satisfied: true}
	}

	clicked := false
	for _, id := range e.cfg.ButtonIDs {
		loc := auth.Locator{Strategy: auth.ByID, Selector: id, Label: "here button"}
		vis, err := drv.Visible(ctx, loc)
		if err != nil || !vis {
			continue
		}
		if err := drv.Click(ctx, loc); err != nil {
			log.Warn("click failed", logx.String("button", id), logx.Err(err))
			continue
		}
		log.Info("clicked attendance button", logx.String("button", id))
		clicked = true
		break
	}
	if !clicked {
		return schedule.Outcome{Err: fmt.Errorf("no attendance button present")}
	}

	// Recheck the signal rather than trusting the click.
	marked, err = e.alreadyMarked(ctx, drv, block)
	if err != nil {
		return schedule.Outcome{Err: fmt.Errorf("verify marking: %w", err)}
	}
	if !marked {
		return schedule.Outcome{Err: fmt.Errorf("attendance not confirmed after click")}
	}
	log.Info("successfully marked attendance")
	return schedule.Outcome{Satisfied: true}
}

// alreadyMarked reads the attending block's aria-hidden attribute; the
// portal flips it to "false" once the student is checked in.
func (e *Executor) alreadyMarked(ctx context.Context, drv Driver, block auth.Locator) (bool, error) {
	v, err := drv.Attribute(ctx, block, "aria-hidden")
	if err != nil {
		return false, fmt.Errorf("read attending signal: %w", err)
	}
	return v == "false", nil
}

