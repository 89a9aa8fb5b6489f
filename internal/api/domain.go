package api

import (
	"github.com/arbiterlabs/arbiter/internal/assessments"
	"github.com/arbiterlabs/arbiter/internal/workflows"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Workflows   workflows.System
	Assessments assessments.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	workflowsSystem := workflows.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
	)

	assessmentsSystem := assessments.New(
		runtime.Database.Connection(),
		workflowsSystem,
		runtime.Publisher,
		runtime.Logger,
		runtime.Pagination,
	)

	return &Domain{
		Workflows:   workflowsSystem,
		Assessments: assessmentsSystem,
	}
}
