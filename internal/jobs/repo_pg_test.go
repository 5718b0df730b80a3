package jobs

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var jobRowColumns = []string{
	"id", "status", "fingerprint", "request_id", "session_id", "file_name", "file_size_bytes",
	"file_key", "query", "result_text", "agents_used", "error_code", "error_detail", "cached_result",
	"created_at", "started_at", "completed_at", "processing_time_seconds",
}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Now().UTC()
	job := Job{
		ID:            "8a6f0d0e-9f7c-4b7e-9a55-0e27e7d26b10",
		Status:        StatusPending,
		Fingerprint:   "fp-1",
		RequestID:     "req-1",
		FileName:      "report.pdf",
		FileSizeBytes: 42,
		FileKey:       "financial_document_job-1.pdf",
		Query:         DefaultQuery,
		CreatedAt:     createdAt,
	}

	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs(
			job.ID,
			job.Status,
			job.Fingerprint,
			job.RequestID,
			nil, // session_id omitted
			job.FileName,
			job.FileSizeBytes,
			job.FileKey,
			job.Query,
			job.CachedResult,
			createdAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoGetByIDScansRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Now().UTC()
	completedAt := createdAt.Add(3 * time.Second)

	rows := sqlmock.NewRows(jobRowColumns).AddRow(
		"job-1", StatusSuccess, "fp-1", "req-1", nil, "report.pdf", int64(42),
		"", DefaultQuery, "analysis text", `["Document Verifier - Validated document authenticity"]`,
		nil, nil, true, createdAt, nil, completedAt, 2.5,
	)
	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusSuccess || !job.CachedResult {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.ResultText == nil || *job.ResultText != "analysis text" {
		t.Fatalf("expected result text, got %v", job.ResultText)
	}
	if len(job.AgentsUsed) != 1 {
		t.Fatalf("expected agents decoded from jsonb, got %v", job.AgentsUsed)
	}
	if job.CompletedAt == nil || job.ProcessingTimeSeconds == nil {
		t.Fatalf("expected completion fields, got %+v", job)
	}
	if job.StartedAt != nil {
		t.Fatalf("expected nil started_at for cached job, got %v", job.StartedAt)
	}
}

func TestPGRepoUpdateStatusApplies(t *testing.T) {
	repo, mock := newMockRepo(t)
	result := "analysis text"
	cached := false
	completedAt := time.Now().UTC()
	seconds := 2.5

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs(
			"job-1",
			StatusSuccess,
			result,
			sqlmock.AnyArg(), // agents jsonb payload
			nil,
			nil,
			cached,
			nil,
			completedAt,
			seconds,
			true,
			"{PENDING,PROCESSING}",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "job-1", StatusSuccess, StatusUpdate{
		ResultText:            &result,
		AgentsUsed:            []string{"a"},
		CachedResult:          &cached,
		CompletedAt:           &completedAt,
		ProcessingTimeSeconds: &seconds,
		ClearFileKey:          true,
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusGuardedByPriorStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	startedAt := time.Now().UTC()

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs(
			"job-1", StatusProcessing, nil, nil, nil, nil, nil,
			startedAt, nil, nil, false, "{PENDING}",
		).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows(jobRowColumns).AddRow(
		"job-1", StatusSuccess, "fp-1", "req-1", nil, "report.pdf", int64(42),
		"", DefaultQuery, "analysis text", nil, nil, nil, false,
		time.Now().UTC(), nil, time.Now().UTC(), 2.5,
	)
	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs").
		WithArgs("job-1").
		WillReturnRows(rows)

	err := repo.UpdateStatus(context.Background(), "job-1", StatusProcessing, StatusUpdate{StartedAt: &startedAt})
	var transition *TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if transition.From != StatusSuccess || transition.To != StatusProcessing {
		t.Fatalf("unexpected transition error: %v", transition)
	}
}

func TestPGRepoUpdateStatusUnknownJob(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE analysis_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.UpdateStatus(context.Background(), "missing", StatusFailure, StatusUpdate{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdateStatusRejectsUnknownTarget(t *testing.T) {
	repo, _ := newMockRepo(t)

	err := repo.UpdateStatus(context.Background(), "job-1", "ARCHIVED", StatusUpdate{})
	var transition *TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestPGRepoCountByStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(StatusPending, int64(2)).
		AddRow(StatusSuccess, int64(5))
	mock.ExpectQuery("SELECT status, COUNT").WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusPending] != 2 || counts[StatusSuccess] != 5 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestPGRepoCountCached(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := repo.CountCached(context.Background())
	if err != nil {
		t.Fatalf("CountCached: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

func TestTextArray(t *testing.T) {
	if got := textArray([]string{StatusPending, StatusProcessing}); got != "{PENDING,PROCESSING}" {
		t.Fatalf("unexpected literal: %q", got)
	}
	if got := textArray([]string{StatusPending}); got != "{PENDING}" {
		t.Fatalf("unexpected literal: %q", got)
	}
}
