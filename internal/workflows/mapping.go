package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/arbiterlabs/arbiter/pkg/query"
	"github.com/arbiterlabs/arbiter/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "workflows", "w").
	Project("id", "ID").
	Project("name", "Name").
	Project("version", "Version").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

func scanWorkflow(s repository.Scanner) (Workflow, error) {
	var w Workflow
	err := s.Scan(
		&w.ID,
		&w.Name,
		&w.Version,
		&w.CreatedAt,
	)
	return w, err
}

// accepted_types and applies_to are stored as jsonb; scanned through raw
// bytes since database/sql has no native array decoding for them.
func scanBucket(s repository.Scanner) (Bucket, error) {
	var (
		b     Bucket
		types []byte
	)

	if err := s.Scan(
		&b.ID,
		&b.WorkflowID,
		&b.Name,
		&b.Required,
		&types,
		&b.Position,
	); err != nil {
		return b, err
	}

	if len(types) > 0 {
		if err := json.Unmarshal(types, &b.AcceptedTypes); err != nil {
			return b, fmt.Errorf("decode accepted_types: %w", err)
		}
	}

	return b, nil
}

func scanCriterion(s repository.Scanner) (Criterion, error) {
	var (
		c       Criterion
		applies []byte
	)

	if err := s.Scan(
		&c.ID,
		&c.WorkflowID,
		&c.Name,
		&c.Description,
		&c.ExampleText,
		&applies,
		&c.Position,
	); err != nil {
		return c, err
	}

	if len(applies) > 0 {
		if err := json.Unmarshal(applies, &c.AppliesTo); err != nil {
			return c, fmt.Errorf("decode applies_to: %w", err)
		}
	}

	return c, nil
}
