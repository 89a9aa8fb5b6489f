package assessments

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/workflows"
)

func testWorkflow() *workflows.Workflow {
	flow := &workflows.Workflow{ID: uuid.New(), Name: "review", Version: 1}
	flow.Buckets = []workflows.Bucket{
		{ID: uuid.New(), WorkflowID: flow.ID, Name: "policies", Required: true, AcceptedTypes: []string{"application/pdf", "text/plain"}},
		{ID: uuid.New(), WorkflowID: flow.ID, Name: "reports", Required: false},
	}
	flow.Criteria = []workflows.Criterion{
		{ID: uuid.New(), WorkflowID: flow.ID, Name: "rule", Description: "stated"},
	}
	return flow
}

func spec(bucketID uuid.UUID, key, contentType string) DocumentSpec {
	return DocumentSpec{
		BucketID:    bucketID,
		StorageKey:  key,
		Filename:    key,
		ContentType: contentType,
		SizeBytes:   128,
	}
}

func TestValidateDocuments(t *testing.T) {
	flow := testWorkflow()
	policies := flow.Buckets[0].ID
	reports := flow.Buckets[1].ID

	tests := []struct {
		name  string
		specs []DocumentSpec
		valid bool
	}{
		{
			"required bucket populated",
			[]DocumentSpec{spec(policies, "policy.pdf", "application/pdf")},
			true,
		},
		{
			"optional bucket may stay empty",
			[]DocumentSpec{spec(policies, "policy.txt", "text/plain")},
			true,
		},
		{
			"unconstrained bucket accepts anything",
			[]DocumentSpec{
				spec(policies, "policy.pdf", "application/pdf"),
				spec(reports, "report.csv", "text/csv"),
			},
			true,
		},
		{
			"required bucket empty",
			[]DocumentSpec{spec(reports, "report.csv", "text/csv")},
			false,
		},
		{
			"no documents at all",
			nil,
			false,
		},
		{
			"unknown bucket",
			[]DocumentSpec{spec(uuid.New(), "file.pdf", "application/pdf")},
			false,
		},
		{
			"rejected content type",
			[]DocumentSpec{spec(policies, "notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")},
			false,
		},
		{
			"missing storage key",
			[]DocumentSpec{{BucketID: policies, Filename: "policy.pdf", ContentType: "application/pdf"}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDocuments(flow, tt.specs)
			if tt.valid && err != nil {
				t.Errorf("validateDocuments() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalid) {
				t.Errorf("validateDocuments() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidateDocumentsNoCriteria(t *testing.T) {
	flow := testWorkflow()
	flow.Criteria = nil

	err := validateDocuments(flow, []DocumentSpec{spec(flow.Buckets[0].ID, "policy.pdf", "application/pdf")})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("validateDocuments() = %v, want ErrInvalid", err)
	}
}

func TestMergeDocuments(t *testing.T) {
	flow := testWorkflow()
	policies := flow.Buckets[0].ID
	reports := flow.Buckets[1].ID

	prior := []Document{
		{ID: uuid.New(), BucketID: policies, StorageKey: "policy-v1.pdf", Filename: "policy-v1.pdf", ContentType: "application/pdf", SizeBytes: 100},
		{ID: uuid.New(), BucketID: reports, StorageKey: "report.csv", Filename: "report.csv", ContentType: "text/csv", SizeBytes: 50},
	}

	t.Run("no replacements carries everything forward", func(t *testing.T) {
		specs, err := mergeDocuments(flow, prior, nil)
		if err != nil {
			t.Fatalf("mergeDocuments() = %v", err)
		}
		if len(specs) != 2 {
			t.Fatalf("specs = %d, want 2", len(specs))
		}
		if specs[0].StorageKey != "policy-v1.pdf" || specs[1].StorageKey != "report.csv" {
			t.Errorf("specs = %+v", specs)
		}
	})

	t.Run("replaced bucket takes the new set", func(t *testing.T) {
		specs, err := mergeDocuments(flow, prior, []BucketReplacement{
			{BucketID: policies, Documents: []DocumentSpec{spec(policies, "policy-v2.pdf", "application/pdf")}},
		})
		if err != nil {
			t.Fatalf("mergeDocuments() = %v", err)
		}
		if len(specs) != 2 {
			t.Fatalf("specs = %d, want 2", len(specs))
		}
		keys := map[string]bool{}
		for _, s := range specs {
			keys[s.StorageKey] = true
		}
		if !keys["policy-v2.pdf"] || !keys["report.csv"] || keys["policy-v1.pdf"] {
			t.Errorf("specs = %+v", specs)
		}
	})

	t.Run("empty replacement clears the bucket", func(t *testing.T) {
		specs, err := mergeDocuments(flow, prior, []BucketReplacement{
			{BucketID: reports},
		})
		if err != nil {
			t.Fatalf("mergeDocuments() = %v", err)
		}
		if len(specs) != 1 || specs[0].StorageKey != "policy-v1.pdf" {
			t.Errorf("specs = %+v", specs)
		}
	})

	t.Run("unknown bucket rejected", func(t *testing.T) {
		_, err := mergeDocuments(flow, prior, []BucketReplacement{{BucketID: uuid.New()}})
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("mergeDocuments() = %v, want ErrInvalid", err)
		}
	})

	t.Run("duplicate replacement rejected", func(t *testing.T) {
		_, err := mergeDocuments(flow, prior, []BucketReplacement{
			{BucketID: policies},
			{BucketID: policies},
		})
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("mergeDocuments() = %v, want ErrInvalid", err)
		}
	})
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		name        string
		done, total int
		want        float64
	}{
		{"zero total", 0, 0, 0},
		{"halfway", 5, 10, 0.5},
		{"complete", 10, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assessment{ProgressDone: tt.done, ProgressTotal: tt.total}
			if got := a.ProgressFraction(); got != tt.want {
				t.Errorf("ProgressFraction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalid, http.StatusBadRequest},
		{ErrNotCompleted, http.StatusConflict},
		{ErrTerminal, http.StatusConflict},
		{ErrNotTerminal, http.StatusConflict},
		{ErrDuplicate, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := MapHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
