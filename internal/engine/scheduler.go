package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arbiterlabs/arbiter/internal/assessments"
	"github.com/arbiterlabs/arbiter/internal/events"
	"github.com/arbiterlabs/arbiter/pkg/lifecycle"
)

// Scheduler polls for pending assessments and dispatches them to a bounded
// worker pool. Each claimed assessment is processed under a renewed
// database lease; a janitor loop returns abandoned work to the queue.
type Scheduler struct {
	store        Store
	orchestrator *Orchestrator
	publisher    events.Publisher
	config       Config
	logger       *slog.Logger
	workerPrefix string
}

// NewScheduler creates a Scheduler around the given store and orchestrator.
func NewScheduler(
	store Store,
	orchestrator *Orchestrator,
	publisher events.Publisher,
	config Config,
	logger *slog.Logger,
) *Scheduler {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}

	return &Scheduler{
		store:        store,
		orchestrator: orchestrator,
		publisher:    publisher,
		config:       config,
		logger:       logger.With("system", "scheduler"),
		workerPrefix: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
}

// Start registers the scheduler's worker pool and janitor with the
// lifecycle coordinator. Workers drain on shutdown; in-flight assessments
// they cannot finish are recovered by lease expiry.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	ctx := lc.Context()

	lc.OnStartup(func() {
		s.logger.Info("starting scheduler",
			"workers", s.config.Workers,
			"lease", s.config.LeaseDuration,
			"budget", s.config.TimeoutBudget,
		)

		go s.run(ctx)
	})

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	group, ctx := errgroup.WithContext(ctx)

	for i := range s.config.Workers {
		workerID := fmt.Sprintf("%s-%d", s.workerPrefix, i)
		group.Go(func() error {
			s.worker(ctx, workerID)
			return nil
		})
	}

	group.Go(func() error {
		s.janitor(ctx)
		return nil
	})

	if err := group.Wait(); err != nil {
		s.logger.Error("scheduler stopped", "error", err)
		return
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) worker(ctx context.Context, workerID string) {
	ticker := time.NewTicker(s.config.ClaimIntervalDuration())
	defer ticker.Stop()

	for {
		// Drain the queue before idling on the ticker.
		for {
			if ctx.Err() != nil {
				return
			}
			if !s.claimAndProcess(ctx, workerID) {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// claimAndProcess claims one assessment and runs it to a settled state.
// Returns false when no work was available.
func (s *Scheduler) claimAndProcess(ctx context.Context, workerID string) bool {
	claimed, err := s.store.Claim(ctx,
		workerID,
		s.config.LeaseDurationDuration(),
		s.config.TenantProcessingCap,
	)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("claim failed", "worker", workerID, "error", err)
		}
		return false
	}
	if claimed == nil {
		return false
	}

	s.logger.Info("claimed assessment",
		"worker", workerID,
		"assessment", claimed.ID,
		"tenant", claimed.TenantID,
		"attempt", claimed.Attempts,
	)

	if err := s.publisher.Publish(ctx, events.Event{
		Type:         events.TypeStarted,
		AssessmentID: claimed.ID,
		TenantID:     claimed.TenantID,
		Status:       string(assessments.StatusProcessing),
	}); err != nil {
		s.logger.Warn("event publish failed", "assessment", claimed.ID, "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopRenewal := s.renewLease(runCtx, claimed.ID, workerID, cancel)

	s.orchestrator.Run(runCtx, workerID, claimed)

	stopRenewal()
	cancel()
	return true
}

// renewLease extends the worker's lease until stopped. Losing the lease
// cancels the processing context so the orchestrator stops writing.
func (s *Scheduler) renewLease(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	cancel context.CancelFunc,
) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.config.RenewIntervalDuration())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				err := s.store.RenewLease(ctx, id, workerID, s.config.LeaseDurationDuration())
				if errors.Is(err, ErrLeaseLost) {
					s.logger.Warn("lease lost during processing", "assessment", id)
					cancel()
					return
				}
				if err != nil {
					s.logger.Warn("lease renewal failed", "assessment", id, "error", err)
				}
			}
		}
	}()

	return func() { close(done) }
}

func (s *Scheduler) janitor(ctx context.Context) {
	ticker := time.NewTicker(s.config.JanitorIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := s.store.ReapExpired(ctx, time.Now().UTC(), s.config.ReapPolicy())
			if err != nil {
				s.logger.Error("lease reaping failed", "error", err)
				continue
			}
			if reaped > 0 {
				s.logger.Info("returned expired leases to queue", "count", reaped)
			}
		}
	}
}
