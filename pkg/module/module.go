// Package module mounts prefix-scoped HTTP routers with their own middleware stacks.
package module

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arbiterlabs/arbiter/pkg/middleware"
)

// Module is an HTTP handler that strips its prefix and delegates to an inner
// router carrying its own middleware stack.
type Module struct {
	prefix     string
	router     http.Handler
	middleware middleware.System
}

// New creates a Module mounted at a single-level prefix such as "/api".
// Panics on an empty, unrooted, or multi-level prefix; mounting happens
// once at startup, so a bad prefix is a programming error.
func New(prefix string, router http.Handler) *Module {
	switch {
	case prefix == "":
		panic(fmt.Errorf("module prefix cannot be empty"))
	case !strings.HasPrefix(prefix, "/"):
		panic(fmt.Errorf("module prefix must start with /: %s", prefix))
	case strings.Count(prefix, "/") != 1:
		panic(fmt.Errorf("module prefix must be single-level sub-path: %s", prefix))
	}
	return &Module{
		prefix:     prefix,
		router:     router,
		middleware: middleware.New(),
	}
}

// Handler returns the inner router wrapped with the module's middleware stack.
func (m *Module) Handler() http.Handler {
	return m.middleware.Apply(m.router)
}

// Prefix returns the module's path prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Serve strips the module prefix from the request path and dispatches to the
// inner router. The request is shallow-cloned so the rewrite never mutates
// the caller's request.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	path := strings.TrimPrefix(req.URL.Path, m.prefix)
	if path == "" {
		path = "/"
	}

	scoped := new(http.Request)
	*scoped = *req
	scoped.URL = new(url.URL)
	*scoped.URL = *req.URL
	scoped.URL.Path = path
	scoped.URL.RawPath = ""

	m.Handler().ServeHTTP(w, scoped)
}

// Use adds middleware to the module's stack.
func (m *Module) Use(mw func(http.Handler) http.Handler) {
	m.middleware.Use(mw)
}
