package portal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"attendbot/internal/auth"
	"attendbot/internal/config"
	"attendbot/internal/schedule"
	logx "attendbot/pkg/logx"
)

type fakePage struct {
	location   string
	ariaHidden string
	buttons    map[string]bool
	clicks     []string
	// clicking a present button flips the attending signal unless stuck.
	stuck bool
}

func (p *fakePage) Location() string { return p.location }

func (p *fakePage) Navigate(_ context.Context, u string) error { p.location = u; return nil }

func (p *fakePage) Fill(context.Context, auth.Locator, string) error { return nil }

func (p *fakePage) Checked(context.Context, auth.Locator) (bool, error) { return false, nil }

func (p *fakePage) SetChecked(context.Context, auth.Locator, bool) error { return nil }

func (p *fakePage) Visible(_ context.Context, loc auth.Locator) (bool, error) {
	return p.buttons[loc.Selector], nil
}

func (p *fakePage) Click(_ context.Context, loc auth.Locator) error {
	p.clicks = append(p.clicks, loc.Selector)
	if p.buttons[loc.Selector] && !p.stuck {
		p.ariaHidden = "false"
	}
	return nil
}

func (p *fakePage) WaitPresent(_ context.Context, loc auth.Locator, _ time.Duration) error {
	if loc.Selector == "pbid-blockFoundHappeningNowAttending" {
		return nil
	}
	return errors.New("absent")
}

func (p *fakePage) Attribute(_ context.Context, loc auth.Locator, name string) (string, error) {
	if name == "aria-hidden" {
		return p.ariaHidden, nil
	}
	return "", nil
}

type fakeAuth struct {
	ok  bool
	err error
}

func (a *fakeAuth) EnsureAuthenticated(context.Context, auth.Credentials, string) (bool, error) {
	return a.ok, a.err
}

func testExecutor(page *fakePage, authn Authenticator, closed *bool) *Executor {
	cfg := config.PortalConfig{}
	full := &config.Config{Portal: cfg}
	full.ApplyDefaults()
	full.Portal.PageURL = "https://portal.example.edu/attendance"
	full.Portal.ExpectedURL = full.Portal.PageURL

	e := NewExecutor(full.Portal, config.BrowserConfig{}, auth.Config{}, auth.Credentials{}, logx.Nop())
	e.openSession = func(ctx context.Context) (Driver, func(), error) {
		return page, func() { *closed = true }, nil
	}
	e.newAuth = func(Driver) Authenticator { return authn }
	return e
}

func testEvent() schedule.Event {
	start := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	return schedule.Event{Name: "Algorithms Lecture", Start: start, End: start.Add(time.Hour), TriggerAt: start.Add(5 * time.Minute)}
}

func TestPerformAlreadyMarked(t *testing.T) {
	page := &fakePage{ariaHidden: "false", buttons: map[string]bool{}}
	var closed bool
	e := testExecutor(page, &fakeAuth{ok: true}, &closed)

	out := e.Perform(context.Background(), testEvent())
	if !out.Satisfied || out.Err != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if len(page.clicks) != 0 {
		t.Fatalf("clicked %v on an already-marked page", page.clicks)
	}
	if !closed {
		t.Fatal("session not closed")
	}
}

func TestPerformClicksFirstCandidateButton(t *testing.T) {
	page := &fakePage{
		ariaHidden: "true",
		buttons: map[string]bool{
			"pbid-buttonFoundHappeningNowButtonsTwoHere": true,
			"pbid-buttonFoundHappeningNowButtonsOneHere": true,
		},
	}
	var closed bool
	e := testExecutor(page, &fakeAuth{ok: true}, &closed)

	out := e.Perform(context.Background(), testEvent())
	if !out.Satisfied {
		t.Fatalf("outcome = %+v", out)
	}
	if len(page.clicks) != 1 || page.clicks[0] != "pbid-buttonFoundHappeningNowButtonsTwoHere" {
		t.Fatalf("clicks = %v", page.clicks)
	}
}

func TestPerformFallsBackToSecondButton(t *testing.T) {
	page := &fakePage{
		ariaHidden: "true",
		buttons: map[string]bool{
			"pbid-buttonFoundHappeningNowButtonsOneHere": true,
		},
	}
	var closed bool
	e := testExecutor(page, &fakeAuth{ok: true}, &closed)

	out := e.Perform(context.Background(), testEvent())
	if !out.Satisfied {
		t.Fatalf("outcome = %+v", out)
	}
	if len(page.clicks) != 1 || page.clicks[0] != "pbid-buttonFoundHappeningNowButtonsOneHere" {
		t.Fatalf("clicks = %v", page.clicks)
	}
}

func TestPerformNoButtonFails(t *testing.T) {
	page := &fakePage{ariaHidden: "true", buttons: map[string]bool{}}
	var closed bool
	e := testExecutor(page, &fakeAuth{ok: true}, &closed)

	out := e.Perform(context.Background(), testEvent())
	if out.Satisfied || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if !closed {
		t.Fatal("session not closed on failure path")
	}
}

func TestPerformUnconfirmedClickFails(t *testing.T) {
	page := &fakePage{
		ariaHidden: "true",
		stuck:      true,
		buttons: map[string]bool{
			"pbid-buttonFoundHappeningNowButtonsTwoHere": true,
		},
	}
	var closed bool
	e := testExecutor(page, &fakeAuth{ok: true}, &closed)

	out := e.Perform(context.Background(), testEvent())
	if out.Satisfied || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(out.Err.Error(), "not confirmed") {
		t.Fatalf("err = %v", out.Err)
	}
}

func TestPerformAuthFailure(t *testing.T) {
	page := &fakePage{ariaHidden: "true", buttons: map[string]bool{}}
	var closed bool
	e := testExecutor(page, &fakeAuth{err: auth.ErrAuthTimeout}, &closed)

	out := e.Perform(context.Background(), testEvent())
	if out.Satisfied || !errors.Is(out.Err, auth.ErrAuthTimeout) {
		t.Fatalf("outcome = %+v", out)
	}
	if !closed {
		t.Fatal("session not closed after auth failure")
	}
}
