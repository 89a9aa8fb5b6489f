package api

import (
	"github.com/arbiterlabs/arbiter/internal/config"
	"github.com/arbiterlabs/arbiter/internal/infrastructure"
	"github.com/arbiterlabs/arbiter/pkg/pagination"
	"github.com/arbiterlabs/arbiter/pkg/ratelimit"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination pagination.Config
	Submission *ratelimit.Limiter
}

// NewRuntime creates an API runtime with a module-scoped logger and a
// per-tenant submission limiter.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Storage:   infra.Storage,
			Inference: infra.Inference,
			Publisher: infra.Publisher,
		},
		Pagination: cfg.API.Pagination,
		Submission: ratelimit.New(cfg.Engine.SubmissionRate),
	}
}
