package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "attendbot/pkg/logx"
)

// State is one phase of the login flow.
type State string

const (
	StateUnknown           State = "unknown"
	StateCredentialsEntry  State = "credentials_entry"
	StateMfaChoice         State = "mfa_choice"
	StateAuthenticatorWait State = "authenticator_wait"
	StateOtpEntry          State = "otp_entry"
	StateStaySignedIn      State = "stay_signed_in"
	StateAuthenticated     State = "authenticated"
)

// ErrAuthTimeout means the destination page was not reached within the
// configured wait window. The attempt for this cycle fails; the process
// keeps running.
var ErrAuthTimeout = errors.New("login not detected within wait window")

// Microsoft login surfaces, in priority order per step.
var (
	usernameLocators = []Locator{
		{Strategy: ByName, Selector: "loginfmt", Label: "username field"},
	}
	passwordLocators = []Locator{
		{Strategy: ByName, Selector: "passwd", Label: "password field"},
	}
	submitLocators = []Locator{
		{Strategy: ByID, Selector: "idSIButton9", Label: "sign-in submit"},
	}
	otpInputLocators = []Locator{
		{Strategy: ByCSS, Selector: `input[data-testid="verification-entercode-input"]`, Label: "otp input (reskin)"},
		{Strategy: ByName, Selector: "otc", Label: "otp input"},
	}
	otpSubmitLocators = []Locator{
		{Strategy: ByID, Selector: "idSubmit_SAOTCC_Continue", Label: "otp verify"},
		{Strategy: ByCSS, Selector: `[data-testid="reskin-step-next-button"]`, Label: "otp next (reskin)"},
	}
	otherMethodLocators = []Locator{
		{Strategy: ByID, Selector: "signInAnotherWay", Label: "sign in another way"},
		{Strategy: ByCSS, Selector: `[data-testid="authmethod-picker-phoneAppOTP"]`, Label: "verification code option"},
	}
	kmsiCheckboxLocators = []Locator{
		{Strategy: ByID, Selector: "KmsiCheckboxField", Label: "kmsi checkbox"},
	}
	// The confirm button is localized; match the submit's value text.
	kmsiConfirmLocators = []Locator{
		{
			Strategy: ByValue,
			Selector: `input[type='submit'].button_primary`,
			Values:   []string{"是", "下一步", "Yes", "同意", "确认", "继续", "登录", "Sign in", "Accept", "Next", "Continue"},
			Label:    "kmsi confirm",
		},
	}
)

type Config struct {
	// MaxWait bounds the whole flow, InitialWait is the settle pause
	// after navigation, PollInterval paces the location checks.
	MaxWait      time.Duration
	InitialWait  time.Duration
	PollInterval time.Duration
	// PushWait bounds how long to sit on the authenticator push screen
	// before falling back to a verification code.
	PushWait time.Duration
	// PreferOTP skips the push wait entirely.
	PreferOTP   bool
	StepRetries int
	RetryDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Minute
	}
	if c.InitialWait <= 0 {
		c.InitialWait = 3 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.PushWait <= 0 {
		c.PushWait = 90 * time.Second
	}
	if c.StepRetries <= 0 {
		c.StepRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// Machine walks the login flow over a Driver. One Machine runs one flow
// at a time.
type Machine struct {
	drv Driver
	cfg Config
	log logx.Logger
	// totpNow feeds code generation; swappable for frozen-clock tests.
	totpNow func() time.Time
}

func NewMachine(drv Driver, cfg Config, log logx.Logger) *Machine {
	return &Machine{drv: drv, cfg: cfg.withDefaults(), log: log, totpNow: time.Now}
}

// EnsureAuthenticated drives the flow until the driver's location is the
// destination or the wait window closes. A session that is already
// signed in short-circuits with zero page interactions. Reaching the
// destination without ever seeing an MFA prompt is success, not an
// error.
func (m *Machine) EnsureAuthenticated(ctx context.Context, creds Credentials, dest string) (bool, error) {
	if err := sleep(ctx, m.cfg.InitialWait); err != nil {
		return false, err
	}
	deadline := time.Now().Add(m.cfg.MaxWait)
	state := StateUnknown
	otpAttempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if state == StateAuthenticated {
			m.log.Info("login complete")
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, fmt.Errorf("%w (%s, stuck in %s)", ErrAuthTimeout, m.cfg.MaxWait, state)
		}

		next, err := m.step(ctx, state, creds, &otpAttempts, dest)
		if err != nil {
			return false, fmt.Errorf("auth %s: %w", state, err)
		}
		if next != state {
			m.log.Debug("auth transition", logx.String("from", string(state)), logx.String("to", string(next)))
		}
		state = next
	}
}

func (m *Machine) step(ctx context.Context, state State, creds Credentials, otpAttempts *int, dest string) (State, error) {
	switch state {
	case StateUnknown:
		return m.stepUnknown(ctx, dest)
	case StateCredentialsEntry:
		return m.stepCredentials(ctx, creds)
	case StateMfaChoice:
		return m.stepMfaChoice(ctx, dest)
	case StateAuthenticatorWait:
		return m.stepAuthenticatorWait(ctx, dest)
	case StateOtpEntry:
		return m.stepOtpEntry(ctx, creds, otpAttempts)
	case StateStaySignedIn:
		return m.stepStaySignedIn(ctx, dest)
	default:
		return state, fmt.Errorf("unhandled state %q", state)
	}
}

func (m *Machine) atDest(dest string) bool {
	return strings.HasPrefix(m.drv.Location(), dest)
}

func (m *Machine) stepUnknown(ctx context.Context, dest string) (State, error) {
	if m.atDest(dest) {
		m.log.Info("already logged in")
		return StateAuthenticated, nil
	}
	if vis, _ := m.visibleAny(ctx, usernameLocators); vis {
		m.log.Info("need to login")
		return StateCredentialsEntry, nil
	}
	if vis, _ := m.visibleAny(ctx, kmsiCheckboxLocators); vis {
		return StateStaySignedIn, nil
	}
	if vis, _ := m.visibleAny(ctx, otpInputLocators); vis {
		return StateOtpEntry, nil
	}
	// A session restored from the user-data dir may still be redirecting.
	if err := sleep(ctx, m.cfg.PollInterval); err != nil {
		return StateUnknown, err
	}
	return StateUnknown, nil
}

func (m *Machine) stepCredentials(ctx context.Context, creds Credentials) (State, error) {
	if err := tryLocators(ctx, m.drv, "fill username", usernameLocators, m.cfg.StepRetries, m.cfg.RetryDelay, func(loc Locator) error {
		return m.drv.Fill(ctx, loc, creds.Username)
	}); err != nil {
		return StateUnknown, err
	}
	if err := m.clickAny(ctx, "submit username", submitLocators); err != nil {
		return StateUnknown, err
	}
	if err := sleep(ctx, m.cfg.RetryDelay); err != nil {
		return StateUnknown, err
	}
	if err := tryLocators(ctx, m.drv, "fill password", passwordLocators, m.cfg.StepRetries, m.cfg.RetryDelay, func(loc Locator) error {
		return m.drv.Fill(ctx, loc, creds.Password)
	}); err != nil {
		return StateUnknown, err
	}
	if err := m.clickAny(ctx, "submit password", submitLocators); err != nil {
		return StateUnknown, err
	}
	if err := sleep(ctx, m.cfg.RetryDelay); err != nil {
		return StateUnknown, err
	}
	return StateMfaChoice, nil
}

func (m *Machine) stepMfaChoice(ctx context.Context, dest string) (State, error) {
	if m.atDest(dest) {
		// MFA not required for this session.
		return StateAuthenticated, nil
	}
	if vis, _ := m.visibleAny(ctx, kmsiCheckboxLocators); vis {
		return StateStaySignedIn, nil
	}
	if vis, _ := m.visibleAny(ctx, otpInputLocators); vis {
		return StateOtpEntry, nil
	}
	if m.cfg.PreferOTP {
		// Optional: the alternate-method link may not exist on every
		// tenant. Fall through to the push wait when it doesn't.
		if err := m.clickAny(ctx, "choose verification code", otherMethodLocators); err == nil {
			return StateOtpEntry, nil
		}
	}
	return StateAuthenticatorWait, nil
}

func (m *Machine) stepAuthenticatorWait(ctx context.Context, dest string) (State, error) {
	m.log.Info("waiting for authenticator approval")
	pushDeadline := time.Now().Add(m.cfg.PushWait)
	for time.Now().Before(pushDeadline) {
		if m.atDest(dest) {
			return StateAuthenticated, nil
		}
		if vis, _ := m.visibleAny(ctx, kmsiCheckboxLocators); vis {
			return StateStaySignedIn, nil
		}
		if vis, _ := m.visibleAny(ctx, otpInputLocators); vis {
			return StateOtpEntry, nil
		}
		if err := sleep(ctx, m.cfg.PollInterval); err != nil {
			return StateUnknown, err
		}
	}

	m.log.Warn("authenticator push unanswered, falling back to verification code")
	if err := m.clickAny(ctx, "fall back to verification code", otherMethodLocators); err != nil {
		return StateUnknown, err
	}
	return StateOtpEntry, nil
}

func (m *Machine) stepOtpEntry(ctx context.Context, creds Credentials, attempts *int) (State, error) {
	*attempts++
	code, err := totpCode(creds.TOTPSecret, m.totpNow())
	if err != nil {
		return StateUnknown, err
	}
	if err := tryLocators(ctx, m.drv, "fill otp", otpInputLocators, m.cfg.StepRetries, m.cfg.RetryDelay, func(loc Locator) error {
		return m.drv.Fill(ctx, loc, code)
	}); err != nil {
		return StateUnknown, err
	}
	if err := m.clickAny(ctx, "submit otp", otpSubmitLocators); err != nil {
		return StateUnknown, err
	}
	if err := sleep(ctx, m.cfg.RetryDelay); err != nil {
		return StateUnknown, err
	}

	// The input staying visible means the code was rejected. Retry once
	// with a regenerated code in case the window rolled over mid-entry.
	if vis, _ := m.visibleAny(ctx, otpInputLocators); vis {
		if *attempts >= 2 {
			return StateUnknown, fmt.Errorf("verification code rejected after %d attempts", *attempts)
		}
		m.log.Warn("verification code rejected, retrying with a fresh code")
		return StateOtpEntry, nil
	}
	return StateStaySignedIn, nil
}

func (m *Machine) stepStaySignedIn(ctx context.Context, dest string) (State, error) {
	m.maybeKMSI(ctx)
	if m.atDest(dest) {
		return StateAuthenticated, nil
	}
	if err := sleep(ctx, m.cfg.PollInterval); err != nil {
		return StateUnknown, err
	}
	return StateStaySignedIn, nil
}

// maybeKMSI handles the stay-signed-in prompt wherever it shows up: tick
// the checkbox when present and unticked, click the localized confirm.
// Best effort; the prompt not being there is fine.
func (m *Machine) maybeKMSI(ctx context.Context) {
	for _, loc := range kmsiCheckboxLocators {
		vis, err := m.drv.Visible(ctx, loc)
		if err != nil || !vis {
			continue
		}
		checked, err := m.drv.Checked(ctx, loc)
		if err == nil && !checked {
			if err := m.drv.SetChecked(ctx, loc, true); err == nil {
				m.log.Info("ticked stay-signed-in checkbox")
			}
		}
		break
	}
	_ = tryLocators(ctx, m.drv, "confirm stay signed in", kmsiConfirmLocators, 1, 0, func(loc Locator) error {
		return m.drv.Click(ctx, loc)
	})
}

func (m *Machine) clickAny(ctx context.Context, step string, locs []Locator) error {
	return tryLocators(ctx, m.drv, step, locs, m.cfg.StepRetries, m.cfg.RetryDelay, func(loc Locator) error {
		return m.drv.Click(ctx, loc)
	})
}

func (m *Machine) visibleAny(ctx context.Context, locs []Locator) (bool, error) {
	var lastErr error
	for _, loc := range locs {
		vis, err := m.drv.Visible(ctx, loc)
		if err != nil {
			lastErr = err
			continue
		}
		if vis {
			return true, nil
		}
	}
	return false, lastErr
}

