// Package browser runs the rod-backed Chromium session that attendance
// attempts drive. One Session per attempt; the profile directory is
// shared across attempts so Microsoft session cookies survive.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"attendbot/internal/auth"
	"attendbot/internal/config"
	logx "attendbot/pkg/logx"
)

type Session struct {
	cfg config.BrowserConfig
	log logx.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Open launches a browser with the persistent user-data dir and one
// blank page. The caller owns the session and must Close it.
func Open(ctx context.Context, cfg config.BrowserConfig, log logx.Logger) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		UserDataDir(cfg.UserDataDir).
		Set("log-level", "3")
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(url).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	log.Debug("browser session opened", logx.Bool("headless", cfg.Headless))
	return &Session{cfg: cfg, log: log, launcher: l, browser: b, page: page}, nil
}

// Close tears the whole browser down. Safe to call once per session on
// any exit path.
func (s *Session) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.log.Debug("browser close", logx.Err(err))
		}
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
}

func (s *Session) Location() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (s *Session) Visible(ctx context.Context, loc auth.Locator) (bool, error) {
	el, err := s.find(ctx, loc)
	if err != nil || el == nil {
		return false, err
	}
	return el.Visible()
}

// Present reports whether the locator resolves at all, visible or not.
func (s *Session) Present(ctx context.Context, loc auth.Locator) (bool, error) {
	el, err := s.find(ctx, loc)
	return el != nil, err
}

func (s *Session) Fill(ctx context.Context, loc auth.Locator, text string) error {
	el, err := s.mustFind(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, loc auth.Locator) error {
	el, err := s.mustFind(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (s *Session) Checked(ctx context.Context, loc auth.Locator) (bool, error) {
	el, err := s.mustFind(ctx, loc)
	if err != nil {
		return false, err
	}
	v, err := el.Property("checked")
	if err != nil {
		return false, fmt.Errorf("read checked %s: %w", loc, err)
	}
	return v.Bool(), nil
}

func (s *Session) SetChecked(ctx context.Context, loc auth.Locator, checked bool) error {
	cur, err := s.Checked(ctx, loc)
	if err != nil {
		return err
	}
	if cur == checked {
		return nil
	}
	return s.Click(ctx, loc)
}

// Attribute returns the named attribute, or "" when the attribute is not
// set on the element.
func (s *Session) Attribute(ctx context.Context, loc auth.Locator, name string) (string, error) {
	el, err := s.mustFind(ctx, loc)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", fmt.Errorf("read %s of %s: %w", name, loc, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (s *Session) mustFind(ctx context.Context, loc auth.Locator) (*rod.Element, error) {
	el, err := s.find(ctx, loc)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("%s: element not found", loc)
	}
	return el, nil
}

// find resolves a locator on the top page, then across one level of
// iframes. Returns (nil, nil) when nothing matches.
func (s *Session) find(ctx context.Context, loc auth.Locator) (*rod.Element, error) {
	scopes, err := s.scopes(ctx)
	if err != nil {
		return nil, err
	}
	for _, scope := range scopes {
		el, err := findIn(scope, loc)
		if err != nil {
			continue
		}
		if el != nil {
			return el, nil
		}
	}
	return nil, nil
}

func (s *Session) scopes(ctx context.Context) ([]*rod.Page, error) {
	top := s.page.Context(ctx)
	scopes := []*rod.Page{top}
	frames, err := top.Elements("iframe")
	if err != nil {
		return scopes, nil
	}
	for _, f := range frames {
		fp, err := f.Frame()
		if err != nil {
			continue
		}
		scopes = append(scopes, fp)
	}
	return scopes, nil
}

func findIn(p *rod.Page, loc auth.Locator) (*rod.Element, error) {
	switch loc.Strategy {
	case auth.ByID:
		return hasCSS(p, "#"+loc.Selector)
	case auth.ByName:
		return hasCSS(p, fmt.Sprintf("[name=%q]", loc.Selector))
	case auth.ByCSS:
		return hasCSS(p, loc.Selector)
	case auth.ByValue:
		els, err := p.Elements(loc.Selector)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			vis, err := el.Visible()
			if err != nil || !vis {
				continue
			}
			val, err := el.Attribute("value")
			if err != nil || val == nil {
				continue
			}
			for _, want := range loc.Values {
				if strings.Contains(*val, want) {
					return el, nil
				}
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown locator strategy %q", loc.Strategy)
	}
}

func hasCSS(p *rod.Page, css string) (*rod.Element, error) {
	has, el, err := p.Has(css)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return el, nil
}

// WaitPresent polls until the locator resolves or the timeout elapses.
func (s *Session) WaitPresent(ctx context.Context, loc auth.Locator, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := s.Present(ctx, loc)
		if err == nil && ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: not present after %s", loc, timeout)
		}
		timer := time.NewTimer(500 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
