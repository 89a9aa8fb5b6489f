package assessments

import (
	"context"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/pkg/pagination"
)

// System defines assessment domain operations. All mutation paths go
// through Create, Rerun, and Cancel; processing state transitions belong
// to the engine, never to this API surface.
type System interface {
	Handler() *Handler

	Create(ctx context.Context, cmd CreateCommand) (*Assessment, error)
	List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Assessment], error)
	Search(ctx context.Context, filter Filter, page pagination.PageRequest) (*pagination.PageResult[Assessment], error)
	Fetch(ctx context.Context, id uuid.UUID) (*Assessment, error)
	Status(ctx context.Context, id uuid.UUID) (*StatusView, error)
	Results(ctx context.Context, id uuid.UUID) ([]Result, error)
	Rerun(ctx context.Context, id uuid.UUID, cmd RerunCommand) (*Assessment, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}
