package assessments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/arbiterlabs/arbiter/internal/events"
	"github.com/arbiterlabs/arbiter/pkg/pagination"
)

type capturingPublisher struct {
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.events = append(p.events, evt)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

var assessmentColumns = []string{
	"id", "workflow_id", "tenant_id", "status", "error_code", "error_message",
	"progress_done", "progress_total", "passed_count", "failed_count",
	"cost_units", "attempts", "cancel_requested", "created_at", "started_at",
	"completed_at",
}

var documentColumns = []string{
	"id", "assessment_id", "bucket_id", "filename", "content_type",
	"size_bytes", "storage_key", "parse_status", "parse_error",
}

func expectFetch(mock sqlmock.Sqlmock, id uuid.UUID, status Status) {
	mock.ExpectQuery("SELECT (.+) FROM public.assessments").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(assessmentColumns).AddRow(
			id.String(), uuid.New().String(), "tenant-a", string(status),
			nil, nil, 0, 1, 0, 0, 0, 1, false, time.Now().UTC(), nil, nil,
		))
	mock.ExpectQuery("SELECT (.+) FROM assessment_documents").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(documentColumns))
}

func TestCancelProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	publisher := &capturingPublisher{}
	sys := New(db, nil, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)), pagination.Config{})

	id := uuid.New()
	expectFetch(mock, id, StatusProcessing)
	mock.ExpectExec("UPDATE assessments").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE assessments").
		WithArgs(id, ErrCodeCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := sys.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel() = %v", err)
	}

	// processing assessments finalize via the worker, not here
	if len(publisher.events) != 0 {
		t.Errorf("published %d events, want 0", len(publisher.events))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCancelPendingFinalizes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	publisher := &capturingPublisher{}
	sys := New(db, nil, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)), pagination.Config{})

	id := uuid.New()
	expectFetch(mock, id, StatusPending)
	mock.ExpectExec("UPDATE assessments").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE assessments").
		WithArgs(id, ErrCodeCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := sys.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel() = %v", err)
	}

	if len(publisher.events) != 1 || publisher.events[0].Type != events.TypeCancelled {
		t.Errorf("events = %+v, want one %s", publisher.events, events.TypeCancelled)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCancelRacesTerminalTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	publisher := &capturingPublisher{}
	sys := New(db, nil, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)), pagination.Config{})

	// the assessment completes between the fetch and the flag update
	id := uuid.New()
	expectFetch(mock, id, StatusProcessing)
	mock.ExpectExec("UPDATE assessments").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = sys.Cancel(context.Background(), id)
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("Cancel() = %v, want ErrTerminal", err)
	}

	if len(publisher.events) != 0 {
		t.Errorf("published %d events, want 0", len(publisher.events))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCancelTerminalStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sys := New(db, nil, &capturingPublisher{}, slog.New(slog.NewTextHandler(io.Discard, nil)), pagination.Config{})

	id := uuid.New()
	expectFetch(mock, id, StatusCompleted)

	err = sys.Cancel(context.Background(), id)
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("Cancel() = %v, want ErrTerminal", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
