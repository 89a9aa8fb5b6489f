package main

import (
	"time"

	"github.com/arbiterlabs/arbiter/internal/config"
	"github.com/arbiterlabs/arbiter/internal/engine"
	"github.com/arbiterlabs/arbiter/internal/evaluator"
	"github.com/arbiterlabs/arbiter/internal/evidence"
	"github.com/arbiterlabs/arbiter/internal/infrastructure"
	"github.com/arbiterlabs/arbiter/internal/workflows"
	"github.com/arbiterlabs/arbiter/pkg/ratelimit"
	"github.com/arbiterlabs/arbiter/pkg/retry"
)

type Server struct {
	infra     *infrastructure.Infrastructure
	modules   *Modules
	scheduler *engine.Scheduler
	http      *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
	)

	return &Server{
		infra:     infra,
		modules:   modules,
		scheduler: buildScheduler(cfg, infra),
		http:      newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

func buildScheduler(cfg *config.Config, infra *infrastructure.Infrastructure) *engine.Scheduler {
	conn := infra.Database.Connection()
	store := engine.NewPostgresStore(conn)

	eval := evaluator.New(
		infra.Inference,
		cfg.Engine.BatchSize,
		retry.Options{}.Defaults(),
		infra.Logger,
	)

	orchestrator := engine.NewOrchestrator(
		store,
		workflows.New(conn, infra.Logger, cfg.API.Pagination),
		infra.Storage,
		eval,
		evidence.NewLocator(cfg.Engine.EvidenceThreshold),
		ratelimit.New(cfg.Engine.TenantInferenceRate),
		infra.Publisher,
		cfg.Engine,
		infra.Logger,
	)

	return engine.NewScheduler(store, orchestrator, infra.Publisher, cfg.Engine, infra.Logger)
}

func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.scheduler.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
