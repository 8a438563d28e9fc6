package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Strategy names how a Locator's selector is interpreted by the driver.
type Strategy string

const (
	ByID   Strategy = "id"
	ByName Strategy = "name"
	ByCSS  Strategy = "css"
	// ByValue matches elements under the CSS selector whose value
	// attribute contains one of Values. Used for the localized
	// stay-signed-in confirm buttons.
	ByValue Strategy = "value"
)

// Locator describes one way to find an element. Steps carry a chain of
// locators in priority order; the first that resolves wins.
type Locator struct {
	Strategy Strategy
	Selector string
	Values   []string
	Label    string
}

func (l Locator) String() string {
	if l.Label != "" {
		return l.Label
	}
	return fmt.Sprintf("%s=%s", l.Strategy, l.Selector)
}

// ErrLocatorsExhausted means no locator in a chain produced a visible
// element within the retry budget.
var ErrLocatorsExhausted = errors.New("no locator matched")

// tryLocators runs act against the first visible locator in the chain.
// Visibility is re-checked on every attempt because the login pages swap
// content under stable URLs. Retries are bounded with a fixed delay.
func tryLocators(ctx context.Context, d Driver, step string, locs []Locator, retries int, delay time.Duration, act func(Locator) error) error {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		for _, loc := range locs {
			vis, err := d.Visible(ctx, loc)
			if err != nil {
				lastErr = fmt.Errorf("%s: %w", loc, err)
				continue
			}
			if !vis {
				continue
			}
			if err := act(loc); err != nil {
				lastErr = fmt.Errorf("%s: %w", loc, err)
				continue
			}
			return nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%s: %w: %w", step, ErrLocatorsExhausted, lastErr)
	}
	return fmt.Errorf("%s: %w", step, ErrLocatorsExhausted)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
