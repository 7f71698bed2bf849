package browser

import "fmt"

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// event is a lifecycle input to the state machine.
type event int

const (
	eventLaunched event = iota
	eventLoggedIn
	eventClosed
)

func (e event) String() string {
	switch e {
	case eventLaunched:
		return "launched"
	case eventLoggedIn:
		return "logged_in"
	case eventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// transition is the session's state machine. It returns the next state or an error when
// the event is not valid in the current state.
func transition(from State, ev event) (State, error) {
	switch ev {
	case eventLaunched:
		if from == StateUninitialized || from == StateClosed {
			return StateInitialized, nil
		}
	case eventLoggedIn:
		if from == StateInitialized || from == StateAuthenticated {
			return StateAuthenticated, nil
		}
	case eventClosed:
		return StateClosed, nil
	}
	return from, fmt.Errorf("invalid session transition: %s on %s", from, ev)
}
