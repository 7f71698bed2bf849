package server

import (
	"errors"
	"net/http"

	"github.com/xkilldash9x/autonote/internal/catalog"
	"github.com/xkilldash9x/autonote/internal/task"
)

// ErrInvalidPayload marks a request body that could not be turned into a task.
var ErrInvalidPayload = errors.New("invalid request payload")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// mapTaskError converts an executor error into an HTTP status.
func mapTaskError(err error) int {
	var unknown *task.UnknownTaskError
	switch {
	case errors.As(err, &unknown),
		errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest

	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
