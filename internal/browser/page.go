package browser

import (
	"context"
	"time"
)

// Modifier is a keyboard modifier bit mask.
type Modifier int

const (
	ModAlt Modifier = 1 << iota
	ModCtrl
	ModMeta
	ModShift
)

// Key names understood by Page.Press.
const (
	KeyEnter = "Enter"
	KeyS     = "s"
)

// Page is one browser tab. Every method is bounded by the implementation's own timeout
// and reports an elapsed bound as a *TimeoutError.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until selector is visible or timeout elapses. A zero timeout
	// uses the implementation default.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Exists checks for selector once without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// ClickAndWaitNavigation clicks selector and waits for the resulting navigation.
	ClickAndWaitNavigation(ctx context.Context, selector string) error
	// Clear empties a form field or editable element.
	Clear(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Press(ctx context.Context, key string, mods Modifier) error
	OuterHTML(ctx context.Context, selector string) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the tab and the browser process that owns it.
	Close() error
}

// LaunchOptions fix the identity the browser presents.
type LaunchOptions struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Headless       bool
	ExecPath       string
	Args           []string
	LaunchTimeout  time.Duration
	ActionTimeout  time.Duration
	NavTimeout     time.Duration
}

// Launcher starts a browser process with a single tab.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Credentials are the login form inputs.
type Credentials struct {
	Email    string
	Password string
}

// String never exposes the password.
func (c Credentials) String() string {
	return "Credentials{Email: " + c.Email + ", Password: ****}"
}
