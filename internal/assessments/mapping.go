package assessments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/pkg/query"
	"github.com/arbiterlabs/arbiter/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "assessments", "a").
	Project("id", "ID").
	Project("workflow_id", "WorkflowID").
	Project("tenant_id", "TenantID").
	Project("status", "Status").
	Project("error_code", "ErrorCode").
	Project("error_message", "ErrorMessage").
	Project("progress_done", "ProgressDone").
	Project("progress_total", "ProgressTotal").
	Project("passed_count", "PassedCount").
	Project("failed_count", "FailedCount").
	Project("cost_units", "CostUnits").
	Project("attempts", "Attempts").
	Project("cancel_requested", "CancelRequested").
	Project("created_at", "CreatedAt").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filter narrows assessment searches. All fields are optional.
type Filter struct {
	Search        *string     `json:"search,omitempty"`
	Status        *Status     `json:"status,omitempty"`
	WorkflowID    *uuid.UUID  `json:"workflow_id,omitempty"`
	TenantID      *string     `json:"tenant_id,omitempty"`
	CreatedAfter  *time.Time  `json:"created_after,omitempty"`
	CreatedBefore *time.Time  `json:"created_before,omitempty"`
}

func scanAssessment(s repository.Scanner) (Assessment, error) {
	var a Assessment
	err := s.Scan(
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
	return a, err
}

func scanDocument(s repository.Scanner) (Document, error) {
	var d Document
	err := s.Scan(
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

// Evidence persists as a jsonb column so results stay a single immutable row.
func scanResult(s repository.Scanner) (Result, error) {
	var (
		res Result
		ev  []byte
	)

	if err := s.Scan(
		&res.ID,
		&res.AssessmentID,
		&res.CriterionID,
		&res.Pass,
		&res.Confidence,
		&res.Reasoning,
		&ev,
		&res.CreatedAt,
	); err != nil {
		return res, err
	}

	if len(ev) > 0 {
		res.Evidence = &Evidence{}
		if err := json.Unmarshal(ev, res.Evidence); err != nil {
			return res, err
		}
	}

	return res, nil
}

func encodeEvidence(ev *Evidence) (any, error) {
	if ev == nil {
		return nil, nil
	}
	return json.Marshal(ev)
}
