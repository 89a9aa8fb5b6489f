package api

import (
	"net/http"

	"github.com/arbiterlabs/arbiter/internal/config"
	"github.com/arbiterlabs/arbiter/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	routes.Register(
		mux,
		domain.Workflows.Handler().Routes(),
	)

	routes.Register(
		mux,
		domain.Assessments.Handler().
			WithLimiter(runtime.Submission).
			Routes(),
	)

	documents := newDocumentHandler(
		runtime.Storage,
		runtime.Logger,
		cfg.API.MaxUploadSizeBytes(),
	)
	routes.Register(mux, documents.routes())
}
