// Package assessments implements the assessment domain: one execution of a
// workflow against a concrete set of uploaded documents, its per-criterion
// results, and its lifecycle state machine.
package assessments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the assessment lifecycle state. Completed and failed are
// terminal and never revisited; reruns create a new assessment instead.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Machine-readable error codes recorded on failed assessments.
const (
	ErrCodeCancelled        = "cancelled"
	ErrCodeTimeout          = "timeout"
	ErrCodeRetryExhausted   = "retry-exhausted"
	ErrCodeEvaluationFailed = "evaluation-failed"
	ErrCodeRequiredUnusable = "required-bucket-unusable"
	ErrCodeInvalidWorkflow  = "invalid-workflow"
)

// Assessment is one execution of a workflow against uploaded documents.
type Assessment struct {
	ID              uuid.UUID  `json:"id"`
	WorkflowID      uuid.UUID  `json:"workflow_id"`
	TenantID        string     `json:"tenant_id"`
	Status          Status     `json:"status"`
	ErrorCode       *string    `json:"error_code,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	ProgressDone    int        `json:"progress_done"`
	ProgressTotal   int        `json:"progress_total"`
	PassedCount     int        `json:"passed_count"`
	FailedCount     int        `json:"failed_count"`
	CostUnits       int64      `json:"cost_units"`
	Attempts        int        `json:"attempts"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Documents       []Document `json:"documents,omitempty"`
}

// ProgressFraction returns evaluated/total criteria in [0,1], advisory only.
func (a *Assessment) ProgressFraction() float64 {
	if a.ProgressTotal == 0 {
		return 0
	}
	return float64(a.ProgressDone) / float64(a.ProgressTotal)
}

// Parse outcomes for an assessment document.
const (
	ParsePending string = "pending"
	ParseOK      string = "ok"
	ParseFailed  string = "failed"
)

// Document is a file reference owned by exactly one assessment. Uploading
// the same content to two assessments creates two rows sharing a
// content-addressable storage key.
type Document struct {
	ID           uuid.UUID `json:"id"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	BucketID     uuid.UUID `json:"bucket_id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	StorageKey   string    `json:"storage_key"`
	ParseStatus  string    `json:"parse_status"`
	ParseError   *string   `json:"parse_error,omitempty"`
}

// Evidence is a citation substantiating a result. Page is 1-based within
// the referenced document.
type Evidence struct {
	DocumentID uuid.UUID `json:"document_id"`
	Page       int       `json:"page"`
	Section    string    `json:"section,omitempty"`
	Quote      string    `json:"quote"`
}

// Result is the immutable outcome for one criterion within one assessment.
// Disputed results are flagged externally, never edited in place.
type Result struct {
	ID           uuid.UUID `json:"id"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	CriterionID  uuid.UUID `json:"criterion_id"`
	Pass         bool      `json:"pass"`
	Confidence   string    `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	Evidence     *Evidence `json:"evidence,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DocumentSpec describes one document reference in a create or rerun
// request. The file itself is already present in the blob store under
// StorageKey.
type DocumentSpec struct {
	BucketID    uuid.UUID `json:"bucket_id"`
	StorageKey  string    `json:"storage_key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
}

// CreateCommand carries the data needed to create a new assessment.
type CreateCommand struct {
	WorkflowID uuid.UUID      `json:"workflow_id"`
	TenantID   string         `json:"tenant_id"`
	Documents  []DocumentSpec `json:"documents"`
}

// BucketReplacement names a bucket whose documents are swapped on rerun.
type BucketReplacement struct {
	BucketID  uuid.UUID      `json:"bucket_id"`
	Documents []DocumentSpec `json:"documents"`
}

// RerunCommand creates a new assessment from a prior one, reusing the
// prior documents except in the replaced buckets. The prior assessment is
// never mutated, preserving its evidence trail.
type RerunCommand struct {
	Replacements []BucketReplacement `json:"replacements"`
}

// StatusView is the externally polled progress snapshot.
type StatusView struct {
	ID           uuid.UUID `json:"id"`
	Status       Status    `json:"status"`
	Progress     float64   `json:"progress"`
	ErrorCode    *string   `json:"error_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}
