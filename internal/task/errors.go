package task

import "fmt"

// UnknownTaskError is returned by Execute for an unrecognized task name.
type UnknownTaskError struct {
	Task string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task: %s", e.Task)
}
