// Package workflows implements read-only access to validation templates.
// Workflows, their document buckets, and their criteria are authored by an
// external collaborator; the engine only ever reads them, and referenced
// rows are restrict-deleted to preserve audit history.
package workflows

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Workflow is a named validation template owning ordered buckets and criteria.
// Immutable once referenced by an assessment; edits produce a new version.
type Workflow struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	Buckets   []Bucket    `json:"buckets,omitempty"`
	Criteria  []Criterion `json:"criteria,omitempty"`
}

// Bucket is a named document category within a workflow.
type Bucket struct {
	ID            uuid.UUID `json:"id"`
	WorkflowID    uuid.UUID `json:"workflow_id"`
	Name          string    `json:"name"`
	Required      bool      `json:"required"`
	AcceptedTypes []string  `json:"accepted_types"`
	Position      int       `json:"position"`
}

// Accepts reports whether the bucket admits the given MIME type.
// An empty accepted-type set admits everything.
func (b Bucket) Accepts(contentType string) bool {
	if len(b.AcceptedTypes) == 0 {
		return true
	}
	return slices.Contains(b.AcceptedTypes, contentType)
}

// Criterion is a single validation rule within a workflow. AppliesTo scopes
// the rule to specific buckets; an empty set applies to all buckets.
type Criterion struct {
	ID          uuid.UUID   `json:"id"`
	WorkflowID  uuid.UUID   `json:"workflow_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	ExampleText *string     `json:"example_text,omitempty"`
	AppliesTo   []uuid.UUID `json:"applies_to,omitempty"`
	Position    int         `json:"position"`
}

// AppliesToBucket reports whether the criterion is in scope for the bucket.
func (c Criterion) AppliesToBucket(bucketID uuid.UUID) bool {
	if len(c.AppliesTo) == 0 {
		return true
	}
	return slices.Contains(c.AppliesTo, bucketID)
}

// Bucket returns the workflow bucket with the given id, or nil.
func (w *Workflow) Bucket(id uuid.UUID) *Bucket {
	for i := range w.Buckets {
		if w.Buckets[i].ID == id {
			return &w.Buckets[i]
		}
	}
	return nil
}
