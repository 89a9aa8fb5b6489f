// Package events publishes assessment lifecycle notifications to a Kafka
// topic so downstream consumers can react without polling the API.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted over the lifecycle of an assessment.
const (
	TypeCreated   = "assessment.created"
	TypeStarted   = "assessment.started"
	TypeCompleted = "assessment.completed"
	TypeFailed    = "assessment.failed"
	TypeCancelled = "assessment.cancelled"
)

// Event is a single lifecycle notification. Keyed by assessment ID so a
// partitioned topic preserves per-assessment ordering.
type Event struct {
	Type         string    `json:"type"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	TenantID     string    `json:"tenant_id"`
	Status       string    `json:"status"`
	ErrorCode    string    `json:"error_code,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher emits lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Noop discards all events. Used when eventing is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
