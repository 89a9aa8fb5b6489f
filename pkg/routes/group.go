// Package routes provides declarative route registration over net/http ServeMux.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group organizes routes under a common prefix. Children nest beneath the
// parent's prefix, so a group tree mirrors the URL hierarchy it serves.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds every route reachable from the given groups to the mux,
// using method-qualified patterns ("GET /assessments/{id}").
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, group Group) {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+fullPrefix+route.Pattern, route.Handler)
	}
	for _, child := range group.Children {
		registerGroup(mux, fullPrefix, child)
	}
}
