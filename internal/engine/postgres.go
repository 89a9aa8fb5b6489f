package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/assessments"
	"github.com/arbiterlabs/arbiter/pkg/repository"
)

const (
	claimQuery = `
		WITH candidate AS (
			SELECT a.id
			FROM assessments a
			WHERE a.status = 'pending'
			  AND a.next_attempt_at <= $3
			  AND (
				SELECT COUNT(*)
				FROM assessments p
				WHERE p.tenant_id = a.tenant_id AND p.status = 'processing'
			  ) < $4
			ORDER BY a.created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE assessments a
		SET status = 'processing',
		    lease_owner = $1,
		    lease_expires_at = $2,
		    started_at = COALESCE(a.started_at, $3),
		    attempts = a.attempts + 1
		FROM candidate
		WHERE a.id = candidate.id
		RETURNING a.id, a.workflow_id, a.tenant_id, a.status, a.error_code,
		          a.error_message, a.progress_done, a.progress_total,
		          a.passed_count, a.failed_count, a.cost_units, a.attempts,
		          a.cancel_requested, a.created_at, a.started_at, a.completed_at`

	claimDocumentsQuery = `
		SELECT id, assessment_id, bucket_id, filename, content_type,
		       size_bytes, storage_key, parse_status, parse_error
		FROM assessment_documents
		WHERE assessment_id = $1
		ORDER BY filename`

	renewQuery = `
		UPDATE assessments
		SET lease_expires_at = $3
		WHERE id = $1 AND lease_owner = $2 AND status = 'processing'`

	releaseQuery = `
		UPDATE assessments
		SET status = 'pending',
		    lease_owner = NULL,
		    lease_expires_at = NULL,
		    next_attempt_at = $3
		WHERE id = $1 AND lease_owner = $2 AND status = 'processing'`

	insertResultQuery = `
		INSERT INTO assessment_results (
			id, assessment_id, criterion_id, pass, confidence,
			reasoning, evidence, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	completeQuery = `
		UPDATE assessments
		SET status = 'completed',
		    lease_owner = NULL,
		    lease_expires_at = NULL,
		    passed_count = $3,
		    failed_count = $4,
		    progress_done = progress_total,
		    completed_at = $5
		WHERE id = $1 AND lease_owner = $2 AND status = 'processing'`

	failQuery = `
		UPDATE assessments
		SET status = 'failed',
		    lease_owner = NULL,
		    lease_expires_at = NULL,
		    error_code = $3,
		    error_message = $4,
		    completed_at = $5
		WHERE id = $1 AND lease_owner = $2 AND status = 'processing'`

	parseStatusQuery = `
		UPDATE assessment_documents d
		SET parse_status = $3, parse_error = $4
		FROM assessments a
		WHERE d.id = $1
		  AND a.id = d.assessment_id
		  AND a.lease_owner = $2
		  AND a.status = 'processing'`

	progressQuery = `
		UPDATE assessments
		SET progress_done = $3, progress_total = $4
		WHERE id = $1 AND lease_owner = $2 AND status = 'processing'`

	addCostQuery = `
		UPDATE assessments
		SET cost_units = cost_units + $3
		WHERE id = $1 AND lease_owner = $2 AND status = 'processing'`

	cancelRequestedQuery = `
		SELECT cancel_requested FROM assessments WHERE id = $1`

	reapRequeueQuery = `
		UPDATE assessments
		SET status = 'pending',
		    lease_owner = NULL,
		    lease_expires_at = NULL,
		    next_attempt_at = $1 + make_interval(secs =>
		        LEAST($3, $4 * power($5, GREATEST(attempts - 1, 0))))
		WHERE status = 'processing' AND lease_expires_at < $1 AND attempts < $2`

	reapFailQuery = `
		UPDATE assessments
		SET status = 'failed',
		    lease_owner = NULL,
		    lease_expires_at = NULL,
		    error_code = $3,
		    error_message = $4,
		    completed_at = $1
		WHERE status = 'processing' AND lease_expires_at < $1 AND attempts >= $2`
)

// PostgresStore implements Store against the assessments tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Claim(
	ctx context.Context,
	workerID string,
	lease time.Duration,
	tenantCap int,
) (*assessments.Assessment, error) {
	now := time.Now().UTC()

	var a assessments.Assessment
	err := s.db.QueryRowContext(ctx, claimQuery,
		workerID,
		now.Add(lease),
		now,
		tenantCap,
	).Scan(
		&a.ID,
		&a.WorkflowID,
		&a.TenantID,
		&a.Status,
		&a.ErrorCode,
		&a.ErrorMessage,
		&a.ProgressDone,
		&a.ProgressTotal,
		&a.PassedCount,
		&a.FailedCount,
		&a.CostUnits,
		&a.Attempts,
		&a.CancelRequested,
		&a.CreatedAt,
		&a.StartedAt,
		&a.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim assessment: %w", err)
	}

	docs, err := repository.QueryMany(ctx, s.db, claimDocumentsQuery, []any{a.ID}, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("load documents for %s: %w", a.ID, err)
	}

	a.Documents = docs
	return &a, nil
}

func (s *PostgresStore) RenewLease(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	lease time.Duration,
) error {
	return s.leaseGuarded(ctx, renewQuery, id, workerID, time.Now().UTC().Add(lease))
}

func (s *PostgresStore) Release(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	nextAttempt time.Time,
) error {
	return s.leaseGuarded(ctx, releaseQuery, id, workerID, nextAttempt)
}

func (s *PostgresStore) Complete(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	outcome Outcome,
) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		for _, res := range outcome.Results {
			evidence, err := encodeEvidence(res.Evidence)
			if err != nil {
				return struct{}{}, fmt.Errorf("encode evidence: %w", err)
			}

			if _, err := tx.ExecContext(ctx, insertResultQuery,
				res.ID,
				res.AssessmentID,
				res.CriterionID,
				res.Pass,
				res.Confidence,
				res.Reasoning,
				evidence,
				res.CreatedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert result for criterion %s: %w", res.CriterionID, err)
			}
		}

		if err := repository.ExecExpectOne(ctx, tx, completeQuery,
			id, workerID, outcome.Passed, outcome.Failed, time.Now().UTC(),
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return struct{}{}, ErrLeaseLost
			}
			return struct{}{}, fmt.Errorf("complete assessment: %w", err)
		}

		return struct{}{}, nil
	})
	return err
}

func (s *PostgresStore) Fail(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	code, message string,
) error {
	err := repository.ExecExpectOne(ctx, s.db, failQuery,
		id, workerID, code, message, time.Now().UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLeaseLost
	}
	return err
}

func (s *PostgresStore) SetDocumentParse(
	ctx context.Context,
	docID uuid.UUID,
	workerID string,
	status string,
	parseErr *string,
) error {
	return s.leaseGuarded(ctx, parseStatusQuery, docID, workerID, status, parseErr)
}

func (s *PostgresStore) SetProgress(ctx context.Context, id uuid.UUID, workerID string, done, total int) error {
	return s.leaseGuarded(ctx, progressQuery, id, workerID, done, total)
}

func (s *PostgresStore) AddCost(ctx context.Context, id uuid.UUID, workerID string, units int64) error {
	return s.leaseGuarded(ctx, addCostQuery, id, workerID, units)
}

func (s *PostgresStore) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	if err := s.db.QueryRowContext(ctx, cancelRequestedQuery, id).Scan(&requested); err != nil {
		return false, fmt.Errorf("query cancel flag for %s: %w", id, err)
	}
	return requested, nil
}

func (s *PostgresStore) ReapExpired(ctx context.Context, now time.Time, policy ReapPolicy) (int, error) {
	failed, err := s.db.ExecContext(ctx, reapFailQuery,
		now,
		policy.MaxAttempts,
		assessments.ErrCodeRetryExhausted,
		fmt.Sprintf("lease expired after %d attempts", policy.MaxAttempts),
	)
	if err != nil {
		return 0, fmt.Errorf("fail exhausted leases: %w", err)
	}

	requeued, err := s.db.ExecContext(ctx, reapRequeueQuery,
		now,
		policy.MaxAttempts,
		policy.MaxBackoff.Seconds(),
		policy.InitialBackoff.Seconds(),
		policy.Multiplier,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue expired leases: %w", err)
	}

	nf, _ := failed.RowsAffected()
	nr, _ := requeued.RowsAffected()
	return int(nf + nr), nil
}

func (s *PostgresStore) leaseGuarded(ctx context.Context, query string, args ...any) error {
	err := repository.ExecExpectOne(ctx, s.db, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLeaseLost
	}
	return err
}

func scanDocument(sc repository.Scanner) (assessments.Document, error) {
	var d assessments.Document
	err := sc.Scan(
		&d.ID,
		&d.AssessmentID,
		&d.BucketID,
		&d.Filename,
		&d.ContentType,
		&d.SizeBytes,
		&d.StorageKey,
		&d.ParseStatus,
		&d.ParseError,
	)
	return d, err
}

func encodeEvidence(ev *assessments.Evidence) (any, error) {
	if ev == nil {
		return nil, nil
	}
	return json.Marshal(ev)
}
