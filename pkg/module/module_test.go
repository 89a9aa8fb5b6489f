package module_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arbiterlabs/arbiter/pkg/module"
)

func echoPath() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	})
}

func TestNewValidatesPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		panics bool
	}{
		{"valid", "/api", false},
		{"empty", "", true},
		{"missing slash", "api", true},
		{"multi-level", "/api/v1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				recovered := recover() != nil
				if recovered != tt.panics {
					t.Errorf("panic = %v, want %v", recovered, tt.panics)
				}
			}()
			module.New(tt.prefix, echoPath())
		})
	}
}

func TestModuleStripsPrefix(t *testing.T) {
	m := module.New("/api", echoPath())

	rec := httptest.NewRecorder()
	m.Serve(rec, httptest.NewRequest("GET", "/api/assessments/abc", nil))

	if got := rec.Body.String(); got != "/assessments/abc" {
		t.Errorf("inner path = %q, want %q", got, "/assessments/abc")
	}
}

func TestModuleBarePrefixMapsToRoot(t *testing.T) {
	m := module.New("/api", echoPath())

	rec := httptest.NewRecorder()
	m.Serve(rec, httptest.NewRequest("GET", "/api", nil))

	if got := rec.Body.String(); got != "/" {
		t.Errorf("inner path = %q, want %q", got, "/")
	}
}

func TestModuleMiddlewareApplied(t *testing.T) {
	m := module.New("/api", echoPath())
	m.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test", "applied")
			next.ServeHTTP(w, r)
		})
	})

	rec := httptest.NewRecorder()
	m.Serve(rec, httptest.NewRequest("GET", "/api/x", nil))

	if got := rec.Header().Get("X-Test"); got != "applied" {
		t.Errorf("X-Test header = %q, want %q", got, "applied")
	}
}

func TestRouterDispatchesByPrefix(t *testing.T) {
	router := module.NewRouter()
	router.Mount(module.New("/api", echoPath()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/workflows", nil))

	if got := rec.Body.String(); got != "/workflows" {
		t.Errorf("body = %q, want %q", got, "/workflows")
	}
}

func TestRouterNativeFallback(t *testing.T) {
	router := module.NewRouter()
	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if got := rec.Body.String(); got != "ok" {
		t.Errorf("body = %q, want %q", got, "ok")
	}
}

func TestRouterTrailingSlashNormalized(t *testing.T) {
	router := module.NewRouter()
	router.Mount(module.New("/api", echoPath()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/workflows/", nil))

	if got := rec.Body.String(); got != "/workflows" {
		t.Errorf("body = %q, want %q", got, "/workflows")
	}
}
