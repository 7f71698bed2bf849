package publisher

import "fmt"

// PublicationError reports which step of composing, publishing or reading history failed.
// Timeouts stay detectable through browser.IsTimeout.
type PublicationError struct {
	Step string
	Err  error
}

func (e *PublicationError) Error() string {
	return fmt.Sprintf("publication failed at %q: %v", e.Step, e.Err)
}

func (e *PublicationError) Unwrap() error { return e.Err }
