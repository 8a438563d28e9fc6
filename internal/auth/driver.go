// Package auth drives the Microsoft login flow as an explicit state
// machine: credentials, MFA choice, authenticator push or TOTP fallback,
// and the stay-signed-in prompt.
package auth

import "context"

// Credentials holds everything the login flow may need.
type Credentials struct {
	Username   string
	Password   string
	TOTPSecret string // Base32, as issued by the authenticator binding
}

// Driver is the UI surface the state machine acts on. Implementations
// resolve locators on the top page and one level of iframes.
type Driver interface {
	// Location returns the current page URL.
	Location() string
	Navigate(ctx context.Context, url string) error

	// Visible reports whether the locator resolves to a visible,
	// enabled element. A locator that resolves to nothing is (false, nil).
	Visible(ctx context.Context, loc Locator) (bool, error)
	Fill(ctx context.Context, loc Locator, text string) error
	Click(ctx context.Context, loc Locator) error
	Checked(ctx context.Context, loc Locator) (bool, error)
	SetChecked(ctx context.Context, loc Locator, checked bool) error
}
