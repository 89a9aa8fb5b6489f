package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterlabs/arbiter/internal/assessments"
	"github.com/arbiterlabs/arbiter/internal/parser"
	"github.com/arbiterlabs/arbiter/internal/workflows"
)

func TestPartitionCriteria(t *testing.T) {
	bucketA := uuid.New()
	bucketB := uuid.New()
	bucketEmpty := uuid.New()

	docA := assessments.Document{ID: uuid.New(), BucketID: bucketA}
	docB := assessments.Document{ID: uuid.New(), BucketID: bucketB}

	flow := &workflows.Workflow{
		Criteria: []workflows.Criterion{
			{ID: uuid.New(), Name: "global"},
			{ID: uuid.New(), Name: "scoped-a", AppliesTo: []uuid.UUID{bucketA}},
			{ID: uuid.New(), Name: "scoped-b", AppliesTo: []uuid.UUID{bucketB}},
			{ID: uuid.New(), Name: "scoped-empty", AppliesTo: []uuid.UUID{bucketEmpty}},
		},
	}

	a := &assessments.Assessment{Documents: []assessments.Document{docA, docB}}

	// only docA parsed
	parsed := map[uuid.UUID]*parser.Document{
		docA.ID: {DocumentID: docA.ID},
	}

	applicable, evaluable, unusable := partitionCriteria(flow, a, parsed)

	require.Len(t, applicable, 3, "criterion with no uploaded documents is out of scope")
	require.Len(t, evaluable, 2)
	assert.Equal(t, "global", evaluable[0].Name)
	assert.Equal(t, "scoped-a", evaluable[1].Name)
	require.Len(t, unusable, 1)
	assert.Equal(t, "scoped-b", unusable[0].Name)
}

func TestGroupByDocuments(t *testing.T) {
	bucketA := uuid.New()
	bucketB := uuid.New()

	docA := assessments.Document{ID: uuid.New(), BucketID: bucketA}
	docB := assessments.Document{ID: uuid.New(), BucketID: bucketB}

	criteria := []workflows.Criterion{
		{ID: uuid.New(), Name: "global-1"},
		{ID: uuid.New(), Name: "scoped-a", AppliesTo: []uuid.UUID{bucketA}},
		{ID: uuid.New(), Name: "global-2"},
	}

	a := &assessments.Assessment{Documents: []assessments.Document{docA, docB}}
	parsed := map[uuid.UUID]*parser.Document{
		docA.ID: {DocumentID: docA.ID},
		docB.ID: {DocumentID: docB.ID},
	}

	groups := groupByDocuments(criteria, a, parsed)

	require.Len(t, groups, 2)
	assert.Len(t, groups[0].criteria, 2, "criteria sharing a document set share a group")
	assert.Equal(t, "global-1", groups[0].criteria[0].Name)
	assert.Equal(t, "global-2", groups[0].criteria[1].Name)
	assert.Len(t, groups[0].docs, 2)

	require.Len(t, groups[1].criteria, 1)
	assert.Equal(t, "scoped-a", groups[1].criteria[0].Name)
	require.Len(t, groups[1].docs, 1)
	assert.Equal(t, docA.ID, groups[1].docs[0].DocumentID)
}

func TestChunk(t *testing.T) {
	criteria := make([]workflows.Criterion, 7)

	var sizes []int
	for batch := range chunk(criteria, 3) {
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)

	sizes = nil
	for batch := range chunk(criteria, 0) {
		sizes = append(sizes, len(batch))
	}
	assert.Len(t, sizes, 7, "non-positive size degrades to single-element batches")

	sizes = nil
	for range chunk(nil, 3) {
		sizes = append(sizes, 0)
	}
	assert.Empty(t, sizes)
}

func TestBackoff(t *testing.T) {
	o := &Orchestrator{
		config: Config{
			InitialBackoff:    "30s",
			MaxBackoff:        "10m",
			BackoffMultiplier: 2.0,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 10 * time.Minute},
		{20, 10 * time.Minute},
	}

	for _, tt := range tests {
		if got := o.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
