package browser

import (
	"errors"
	"fmt"
	"time"
)

// SessionInitError reports that the browser process or its tab could not be started.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("browser session init failed: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// AuthReason distinguishes why a login attempt failed.
type AuthReason string

const (
	// ReasonInvalidCredentials means the login surface displayed its rejection marker.
	ReasonInvalidCredentials AuthReason = "invalid_credentials"
	// ReasonMarkerTimeout means neither the authenticated marker nor a rejection appeared in time.
	// UI drift and network failure both end up here.
	ReasonMarkerTimeout AuthReason = "marker_timeout"
	// ReasonStepFailed means a login step (navigate, fill, submit) failed before the wait.
	ReasonStepFailed AuthReason = "step_failed"
)

// AuthenticationError reports a failed login.
type AuthenticationError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed (%s)", e.Reason)
	}
	return fmt.Sprintf("authentication failed (%s): %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TimeoutError reports that a bounded wait elapsed. Callers use it to decide whether a
// retry is worthwhile.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ErrNotInitialized is returned when the page is requested before the session was initialized.
var ErrNotInitialized = errors.New("browser session is not initialized")

// ErrSessionClosed is returned when Close ran while an operation was still using the tab.
var ErrSessionClosed = errors.New("browser session was closed")
