package assessments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/events"
	"github.com/arbiterlabs/arbiter/internal/workflows"
	"github.com/arbiterlabs/arbiter/pkg/pagination"
	"github.com/arbiterlabs/arbiter/pkg/query"
	"github.com/arbiterlabs/arbiter/pkg/repository"
)

const (
	insertAssessmentQuery = `
		INSERT INTO assessments (
			id, workflow_id, tenant_id, status, progress_total, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertDocumentQuery = `
		INSERT INTO assessment_documents (
			id, assessment_id, bucket_id, filename, content_type,
			size_bytes, storage_key, parse_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	documentsQuery = `
		SELECT id, assessment_id, bucket_id, filename, content_type,
		       size_bytes, storage_key, parse_status, parse_error
		FROM assessment_documents
		WHERE assessment_id = $1
		ORDER BY filename`

	resultsQuery = `
		SELECT r.id, r.assessment_id, r.criterion_id, r.pass, r.confidence,
		       r.reasoning, r.evidence, r.created_at
		FROM assessment_results r
		JOIN criteria c ON c.id = r.criterion_id
		WHERE r.assessment_id = $1
		ORDER BY c.position`

	requestCancelQuery = `
		UPDATE assessments
		SET cancel_requested = true
		WHERE id = $1 AND status IN ('pending', 'processing')`

	cancelPendingQuery = `
		UPDATE assessments
		SET status = 'failed', error_code = $2, completed_at = $3
		WHERE id = $1 AND status = 'pending'`
)

type repo struct {
	db         *sql.DB
	flows      workflows.System
	publisher  events.Publisher
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates an assessment repository implementing the System interface.
func New(
	db *sql.DB,
	flows workflows.System,
	publisher events.Publisher,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		flows:      flows,
		publisher:  publisher,
		logger:     logger.With("system", "assessments"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Assessment, error) {
	if cmd.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalid)
	}
	if len(cmd.Documents) == 0 {
		return nil, fmt.Errorf("%w: at least one document is required", ErrInvalid)
	}

	flow, err := r.flows.Fetch(ctx, cmd.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: workflow %s: %s", ErrInvalid, cmd.WorkflowID, err)
	}

	if err := validateDocuments(flow, cmd.Documents); err != nil {
		return nil, err
	}

	assessment, err := r.insert(ctx, flow, cmd.TenantID, cmd.Documents)
	if err != nil {
		return nil, err
	}

	r.publish(ctx, events.Event{
		Type:         events.TypeCreated,
		AssessmentID: assessment.ID,
		TenantID:     assessment.TenantID,
		Status:       string(assessment.Status),
	})

	return assessment, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
) (*pagination.PageResult[Assessment], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "TenantID")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return r.queryPage(ctx, qb, page)
}

func (r *repo) Search(
	ctx context.Context,
	filter Filter,
	page pagination.PageRequest,
) (*pagination.PageResult[Assessment], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(filter.Search, "TenantID").
		WhereEquals("Status", filter.Status).
		WhereEquals("WorkflowID", filter.WorkflowID).
		WhereEquals("TenantID", filter.TenantID).
		WhereAtLeast("CreatedAt", filter.CreatedAfter).
		WhereAtMost("CreatedAt", filter.CreatedBefore)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	return r.queryPage(ctx, qb, page)
}

func (r *repo) Fetch(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	a, err := repository.QueryOne(ctx, r.db, q, args, scanAssessment)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	docs, err := repository.QueryMany(ctx, r.db, documentsQuery, []any{id}, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("query documents for assessment %s: %w", id, err)
	}

	a.Documents = docs
	return &a, nil
}

func (r *repo) Status(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	a, err := repository.QueryOne(ctx, r.db, q, args, scanAssessment)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &StatusView{
		ID:           a.ID,
		Status:       a.Status,
		Progress:     a.ProgressFraction(),
		ErrorCode:    a.ErrorCode,
		ErrorMessage: a.ErrorMessage,
	}, nil
}

func (r *repo) Results(ctx context.Context, id uuid.UUID) ([]Result, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	a, err := repository.QueryOne(ctx, r.db, q, args, scanAssessment)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if a.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCompleted, a.Status)
	}

	return repository.QueryMany(ctx, r.db, resultsQuery, []any{id}, scanResult)
}

func (r *repo) Rerun(ctx context.Context, id uuid.UUID, cmd RerunCommand) (*Assessment, error) {
	prior, err := r.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if !prior.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot rerun while %s", ErrNotTerminal, prior.Status)
	}

	flow, err := r.flows.Fetch(ctx, prior.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", prior.WorkflowID, err)
	}

	specs, err := mergeDocuments(flow, prior.Documents, cmd.Replacements)
	if err != nil {
		return nil, err
	}

	if err := validateDocuments(flow, specs); err != nil {
		return nil, err
	}

	next, err := r.insert(ctx, flow, prior.TenantID, specs)
	if err != nil {
		return nil, err
	}

	r.publish(ctx, events.Event{
		Type:         events.TypeCreated,
		AssessmentID: next.ID,
		TenantID:     next.TenantID,
		Status:       string(next.Status),
	})

	return next, nil
}

func (r *repo) Cancel(ctx context.Context, id uuid.UUID) error {
	a, err := r.Fetch(ctx, id)
	if err != nil {
		return err
	}

	if a.Status.Terminal() {
		return fmt.Errorf("%w: status is %s", ErrTerminal, a.Status)
	}

	if err := repository.ExecExpectOne(ctx, r.db, requestCancelQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: assessment reached a terminal state", ErrTerminal)
		}
		return fmt.Errorf("request cancel for %s: %w", id, err)
	}

	// A pending assessment has no worker to observe the flag, so it is
	// finalized here. Processing assessments flip once the worker notices.
	result, err := r.db.ExecContext(ctx, cancelPendingQuery, id, ErrCodeCancelled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel pending assessment %s: %w", id, err)
	}

	if n, _ := result.RowsAffected(); n == 1 {
		r.publish(ctx, events.Event{
			Type:         events.TypeCancelled,
			AssessmentID: id,
			TenantID:     a.TenantID,
			Status:       string(StatusFailed),
			ErrorCode:    ErrCodeCancelled,
		})
	}

	return nil
}

func (r *repo) insert(
	ctx context.Context,
	flow *workflows.Workflow,
	tenantID string,
	specs []DocumentSpec,
) (*Assessment, error) {
	assessment := Assessment{
		ID:            uuid.New(),
		WorkflowID:    flow.ID,
		TenantID:      tenantID,
		Status:        StatusPending,
		ProgressTotal: len(flow.Criteria),
		CreatedAt:     time.Now().UTC(),
	}

	docs := make([]Document, len(specs))
	for i, spec := range specs {
		docs[i] = Document{
			ID:           uuid.New(),
			AssessmentID: assessment.ID,
			BucketID:     spec.BucketID,
			Filename:     spec.Filename,
			ContentType:  spec.ContentType,
			SizeBytes:    spec.SizeBytes,
			StorageKey:   spec.StorageKey,
			ParseStatus:  ParsePending,
		}
	}

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, insertAssessmentQuery,
			assessment.ID,
			assessment.WorkflowID,
			assessment.TenantID,
			assessment.Status,
			assessment.ProgressTotal,
			assessment.CreatedAt,
		); err != nil {
			return struct{}{}, fmt.Errorf("insert assessment: %w", err)
		}

		for _, d := range docs {
			if _, err := tx.ExecContext(ctx, insertDocumentQuery,
				d.ID,
				d.AssessmentID,
				d.BucketID,
				d.Filename,
				d.ContentType,
				d.SizeBytes,
				d.StorageKey,
				d.ParseStatus,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert document %s: %w", d.Filename, err)
			}
		}

		return struct{}{}, nil
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	assessment.Documents = docs
	return &assessment, nil
}

func (r *repo) queryPage(
	ctx context.Context,
	qb *query.Builder,
	page pagination.PageRequest,
) (*pagination.PageResult[Assessment], error) {
	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count assessments: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanAssessment)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) publish(ctx context.Context, evt events.Event) {
	if err := r.publisher.Publish(ctx, evt); err != nil {
		r.logger.Warn("event publish failed",
			"type", evt.Type,
			"assessment", evt.AssessmentID,
			"error", err,
		)
	}
}

func validateDocuments(flow *workflows.Workflow, specs []DocumentSpec) error {
	if len(flow.Criteria) == 0 {
		return fmt.Errorf("%w: workflow %s has no criteria", ErrInvalid, flow.ID)
	}

	populated := make(map[uuid.UUID]bool, len(flow.Buckets))

	for _, spec := range specs {
		bucket := flow.Bucket(spec.BucketID)
		if bucket == nil {
			return fmt.Errorf("%w: bucket %s is not part of workflow %s",
				ErrInvalid, spec.BucketID, flow.ID)
		}
		if !bucket.Accepts(spec.ContentType) {
			return fmt.Errorf("%w: bucket %s does not accept %s",
				ErrInvalid, bucket.Name, spec.ContentType)
		}
		if spec.StorageKey == "" {
			return fmt.Errorf("%w: document %s has no storage key", ErrInvalid, spec.Filename)
		}
		populated[spec.BucketID] = true
	}

	for _, bucket := range flow.Buckets {
		if bucket.Required && !populated[bucket.ID] {
			return fmt.Errorf("%w: required bucket %s has no documents", ErrInvalid, bucket.Name)
		}
	}

	return nil
}

// mergeDocuments carries prior documents forward except in replaced
// buckets, which take the replacement set even when it is empty.
func mergeDocuments(
	flow *workflows.Workflow,
	prior []Document,
	replacements []BucketReplacement,
) ([]DocumentSpec, error) {
	replaced := make(map[uuid.UUID][]DocumentSpec, len(replacements))
	for _, rep := range replacements {
		if flow.Bucket(rep.BucketID) == nil {
			return nil, fmt.Errorf("%w: bucket %s is not part of workflow %s",
				ErrInvalid, rep.BucketID, flow.ID)
		}
		if _, dup := replaced[rep.BucketID]; dup {
			return nil, fmt.Errorf("%w: bucket %s replaced twice", ErrInvalid, rep.BucketID)
		}
		replaced[rep.BucketID] = rep.Documents
	}

	specs := make([]DocumentSpec, 0, len(prior))
	for _, d := range prior {
		if _, ok := replaced[d.BucketID]; ok {
			continue
		}
		specs = append(specs, DocumentSpec{
			BucketID:    d.BucketID,
			StorageKey:  d.StorageKey,
			Filename:    d.Filename,
			ContentType: d.ContentType,
			SizeBytes:   d.SizeBytes,
		})
	}

	for _, rep := range replacements {
		specs = append(specs, rep.Documents...)
	}

	return specs, nil
}
