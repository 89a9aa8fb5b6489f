// Package middleware provides an ordered HTTP middleware stack plus common
// middleware implementations.
package middleware

import "net/http"

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// System manages an ordered stack of HTTP middleware.
type System interface {
	// Use appends middleware to the stack.
	Use(mw Middleware)
	// Apply wraps handler so middleware executes in the order it was added:
	// the first Use call sees the request first.
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	chain []Middleware
}

// New creates an empty middleware System.
func New() System {
	return &stack{}
}

func (s *stack) Use(mw Middleware) {
	s.chain = append(s.chain, mw)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for i := len(s.chain) - 1; i >= 0; i-- {
		handler = s.chain[i](handler)
	}
	return handler
}
