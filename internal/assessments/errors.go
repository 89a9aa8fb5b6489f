package assessments

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("assessment not found")
	ErrInvalid      = errors.New("invalid assessment request")
	ErrNotCompleted = errors.New("assessment has not completed")
	ErrTerminal     = errors.New("assessment already in a terminal state")
	ErrNotTerminal  = errors.New("assessment has not reached a terminal state")
	ErrDuplicate    = errors.New("assessment already exists")
)

// MapHTTPStatus translates domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, ErrTerminal), errors.Is(err, ErrNotTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
