// Package engine runs assessments: a scheduler claims queued work under a
// database lease and an orchestrator drives each claimed assessment through
// parsing, evaluation, evidence location, and result persistence.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/assessments"
)

// ErrLeaseLost signals that another process took over the assessment,
// usually after this worker's lease expired. The losing worker abandons
// the assessment without writing anything further.
var ErrLeaseLost = errors.New("assessment lease lost")

// Outcome carries everything persisted when an assessment completes.
type Outcome struct {
	Results []assessments.Result
	Passed  int
	Failed  int
}

// ReapPolicy tells ReapExpired how to disposition an expired lease: back to
// pending with backoff while attempts remain, failed once they are spent.
type ReapPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// backoffDelay computes the exponential retry delay for the given attempt
// number (1-based), capped at max.
func backoffDelay(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Store is the engine's durable state interface. All mutating operations
// that follow a claim take the claiming worker's ID and fail with
// ErrLeaseLost when the lease no longer belongs to that worker.
type Store interface {
	// Claim atomically moves one eligible pending assessment to
	// processing under a lease. Tenants at their processing cap are
	// skipped. Returns nil when no work is eligible.
	Claim(ctx context.Context, workerID string, lease time.Duration, tenantCap int) (*assessments.Assessment, error)

	// RenewLease extends the worker's lease on a processing assessment.
	RenewLease(ctx context.Context, id uuid.UUID, workerID string, lease time.Duration) error

	// Release returns a processing assessment to pending for a later
	// retry attempt, clearing the lease.
	Release(ctx context.Context, id uuid.UUID, workerID string, nextAttempt time.Time) error

	// Complete persists all results and flips the assessment to
	// completed in one transaction. Results are visible only with
	// the completed status, never before.
	Complete(ctx context.Context, id uuid.UUID, workerID string, outcome Outcome) error

	// Fail flips the assessment to failed with a machine-readable code.
	Fail(ctx context.Context, id uuid.UUID, workerID string, code, message string) error

	// SetDocumentParse records a parse outcome for one document.
	SetDocumentParse(ctx context.Context, docID uuid.UUID, workerID string, status string, parseErr *string) error

	// SetProgress updates the advisory progress counters.
	SetProgress(ctx context.Context, id uuid.UUID, workerID string, done, total int) error

	// AddCost accumulates inference cost units on the assessment.
	AddCost(ctx context.Context, id uuid.UUID, workerID string, units int64) error

	// CancelRequested reports whether cancellation has been requested.
	CancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// ReapExpired dispositions assessments with expired leases per the
	// policy: requeued with backoff while attempts remain, failed
	// otherwise. Returns the number dispositioned.
	ReapExpired(ctx context.Context, now time.Time, policy ReapPolicy) (int, error)
}
