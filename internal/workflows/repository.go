package workflows

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/pkg/pagination"
	"github.com/arbiterlabs/arbiter/pkg/query"
	"github.com/arbiterlabs/arbiter/pkg/repository"
)

const (
	bucketsQuery = `
		SELECT id, workflow_id, name, required, accepted_types, position
		FROM buckets
		WHERE workflow_id = $1
		ORDER BY position`

	criteriaQuery = `
		SELECT id, workflow_id, name, description, example_text, applies_to, position
		FROM criteria
		WHERE workflow_id = $1
		ORDER BY position`
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a workflow repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "workflows"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
) (*pagination.PageResult[Workflow], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Name")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count workflows: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanWorkflow)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Fetch(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	w, err := repository.QueryOne(ctx, r.db, q, args, scanWorkflow)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrInvalid)
	}

	buckets, err := repository.QueryMany(ctx, r.db, bucketsQuery, []any{id}, scanBucket)
	if err != nil {
		return nil, fmt.Errorf("query buckets for workflow %s: %w", id, err)
	}

	criteria, err := repository.QueryMany(ctx, r.db, criteriaQuery, []any{id}, scanCriterion)
	if err != nil {
		return nil, fmt.Errorf("query criteria for workflow %s: %w", id, err)
	}

	w.Buckets = buckets
	w.Criteria = criteria
	return &w, nil
}
