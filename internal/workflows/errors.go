package workflows

import (
	"errors"
	"net/http"
)

// Domain errors for workflow operations.
var (
	ErrNotFound = errors.New("workflow not found")
	ErrInvalid  = errors.New("invalid workflow reference")
	// ErrNoCriteria indicates a workflow with zero criteria, which can never
	// produce a meaningful assessment.
	ErrNoCriteria = errors.New("workflow has no criteria")
)

// MapHTTPStatus maps workflow domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalid) || errors.Is(err, ErrNoCriteria) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
