package workflows

import (
	"context"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/pkg/pagination"
)

// System defines the public contract for workflow domain operations.
// All operations are reads; workflow authoring happens outside this service.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
	) (*pagination.PageResult[Workflow], error)

	// Fetch returns a workflow with its buckets and criteria fully loaded,
	// ordered by position.
	Fetch(ctx context.Context, id uuid.UUID) (*Workflow, error)
}
