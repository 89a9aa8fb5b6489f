package workflows_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/workflows"
	"github.com/arbiterlabs/arbiter/pkg/pagination"
)

func TestBucketAccepts(t *testing.T) {
	tests := []struct {
		name        string
		accepted    []string
		contentType string
		want        bool
	}{
		{"listed type", []string{"application/pdf", "text/plain"}, "application/pdf", true},
		{"unlisted type", []string{"application/pdf"}, "image/png", false},
		{"empty set admits everything", nil, "application/zip", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := workflows.Bucket{AcceptedTypes: tt.accepted}
			if got := b.Accepts(tt.contentType); got != tt.want {
				t.Errorf("Accepts(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestCriterionAppliesToBucket(t *testing.T) {
	scoped := uuid.New()
	other := uuid.New()

	c := workflows.Criterion{AppliesTo: []uuid.UUID{scoped}}
	if !c.AppliesToBucket(scoped) {
		t.Error("AppliesToBucket(scoped) = false, want true")
	}
	if c.AppliesToBucket(other) {
		t.Error("AppliesToBucket(other) = true, want false")
	}

	global := workflows.Criterion{}
	if !global.AppliesToBucket(other) {
		t.Error("unscoped criterion should apply to every bucket")
	}
}

func TestWorkflowBucket(t *testing.T) {
	id := uuid.New()
	w := &workflows.Workflow{
		Buckets: []workflows.Bucket{{ID: id, Name: "policies"}},
	}

	if b := w.Bucket(id); b == nil || b.Name != "policies" {
		t.Errorf("Bucket(%v) = %+v", id, b)
	}
	if b := w.Bucket(uuid.New()); b != nil {
		t.Errorf("Bucket(unknown) = %+v, want nil", b)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sys := workflows.New(db, discardLogger(), pagination.Config{})

	workflowID := uuid.New()
	bucketID := uuid.New()
	criterionID := uuid.New()
	created := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM public.workflows").
		WithArgs(workflowID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "version", "created_at"}).
			AddRow(workflowID, "security-review", 2, created))

	mock.ExpectQuery("FROM buckets").
		WithArgs(workflowID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workflow_id", "name", "required", "accepted_types", "position"}).
			AddRow(bucketID, workflowID, "policies", true, []byte(`["application/pdf"]`), 0))

	mock.ExpectQuery("FROM criteria").
		WithArgs(workflowID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workflow_id", "name", "description", "example_text", "applies_to", "position"}).
			AddRow(criterionID, workflowID, "encryption", "data must be encrypted", nil, []byte(`["`+bucketID.String()+`"]`), 0))

	flow, err := sys.Fetch(context.Background(), workflowID)
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}

	if flow.Name != "security-review" || flow.Version != 2 {
		t.Errorf("workflow = %+v", flow)
	}
	if len(flow.Buckets) != 1 || flow.Buckets[0].Name != "policies" {
		t.Errorf("buckets = %+v", flow.Buckets)
	}
	if got := flow.Buckets[0].AcceptedTypes; len(got) != 1 || got[0] != "application/pdf" {
		t.Errorf("accepted types = %v", got)
	}
	if len(flow.Criteria) != 1 {
		t.Fatalf("criteria = %+v", flow.Criteria)
	}
	if got := flow.Criteria[0].AppliesTo; len(got) != 1 || got[0] != bucketID {
		t.Errorf("applies_to = %v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFetchNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sys := workflows.New(db, discardLogger(), pagination.Config{})

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM public.workflows").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "version", "created_at"}))

	_, err = sys.Fetch(context.Background(), id)
	if !errors.Is(err, workflows.ErrNotFound) {
		t.Errorf("Fetch() = %v, want ErrNotFound", err)
	}
}
