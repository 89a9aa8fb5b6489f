// Package api assembles the API module: domain systems, route registration,
// and the module-level middleware stack.
package api

import (
	"net/http"

	"github.com/arbiterlabs/arbiter/internal/config"
	"github.com/arbiterlabs/arbiter/internal/infrastructure"
	"github.com/arbiterlabs/arbiter/pkg/middleware"
	"github.com/arbiterlabs/arbiter/pkg/module"
)

// NewModule builds the API module mounted at the configured base path.
// CORS runs before request logging so rejected preflights still short-circuit.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Infrastructure.Logger))

	return m, nil
}
