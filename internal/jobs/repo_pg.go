package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `id, status, fingerprint, request_id, session_id, file_name, file_size_bytes,
       file_key, query, result_text, agents_used, error_code, error_detail, cached_result,
       created_at, started_at, completed_at, processing_time_seconds`

// Create inserts a new job record.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (
	id, status, fingerprint, request_id, session_id, file_name, file_size_bytes,
	file_key, query, cached_result, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var sessionID any
	if job.SessionID != "" {
		sessionID = job.SessionID
	}
	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.Fingerprint,
		job.RequestID,
		sessionID,
		job.FileName,
		job.FileSizeBytes,
		job.FileKey,
		job.Query,
		job.CachedResult,
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE id = $1::uuid
LIMIT 1`

	row := r.DB.QueryRowContext(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// UpdateStatus applies a guarded status transition. The WHERE clause only
// matches when the job is currently in one of the statuses the target may
// be reached from, so concurrent writers cannot overwrite a terminal state.
func (r *PGRepo) UpdateStatus(ctx context.Context, jobID, status string, update StatusUpdate) error {
	prior, ok := priorStatuses(status)
	if !ok {
		return &TransitionError{JobID: jobID, To: status}
	}

	const query = `
UPDATE analysis_jobs
SET status = $2,
    result_text = COALESCE($3::text, result_text),
    agents_used = COALESCE($4::jsonb, agents_used),
    error_code = COALESCE($5::text, error_code),
    error_detail = COALESCE($6::text, error_detail),
    cached_result = CASE
        WHEN $7::boolean IS NOT NULL THEN $7::boolean
        ELSE cached_result
    END,
    started_at = CASE
        WHEN $8::timestamptz IS NOT NULL THEN $8::timestamptz
        WHEN $2 = 'PROCESSING' AND started_at IS NULL THEN now()
        ELSE started_at
    END,
    completed_at = CASE
        WHEN $9::timestamptz IS NOT NULL THEN $9::timestamptz
        WHEN ($2 = 'SUCCESS' OR $2 = 'FAILURE') AND completed_at IS NULL THEN now()
        ELSE completed_at
    END,
    processing_time_seconds = COALESCE($10::double precision, processing_time_seconds),
    file_key = CASE WHEN $11::boolean THEN '' ELSE file_key END
WHERE id = $1::uuid AND status = ANY($12::text[])`

	var agentsPayload any
	if update.AgentsUsed != nil {
		payload, err := json.Marshal(update.AgentsUsed)
		if err != nil {
			return err
		}
		agentsPayload = payload
	}

	res, err := r.DB.ExecContext(ctx, query,
		jobID,
		status,
		update.ResultText,
		agentsPayload,
		update.ErrorCode,
		update.ErrorDetail,
		update.CachedResult,
		update.StartedAt,
		update.CompletedAt,
		update.ProcessingTimeSeconds,
		update.ClearFileKey,
		textArray(prior),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := r.GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		return &TransitionError{JobID: jobID, From: current.Status, To: status}
	}
	return nil
}

// List returns recent jobs ordered newest-first.
func (r *PGRepo) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
SELECT ` + jobColumns + `
FROM analysis_jobs
ORDER BY created_at DESC
LIMIT $1`

	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of jobs per status.
func (r *PGRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	const query = `
SELECT status, COUNT(*)
FROM analysis_jobs
GROUP BY status`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountCached returns how many jobs were answered from the cache.
func (r *PGRepo) CountCached(ctx context.Context) (int64, error) {
	const query = `
SELECT COUNT(*)
FROM analysis_jobs
WHERE cached_result = TRUE`

	var n int64
	if err := r.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

var _ Repo = (*PGRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var sessionID sql.NullString
	var fileKey sql.NullString
	var resultText sql.NullString
	var agentsUsed sql.NullString
	var errorCode sql.NullString
	var errorDetail sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	var processingTime sql.NullFloat64

	err := row.Scan(
		&j.ID,
		&j.Status,
		&j.Fingerprint,
		&j.RequestID,
		&sessionID,
		&j.FileName,
		&j.FileSizeBytes,
		&fileKey,
		&j.Query,
		&resultText,
		&agentsUsed,
		&errorCode,
		&errorDetail,
		&j.CachedResult,
		&j.CreatedAt,
		&startedAt,
		&completedAt,
		&processingTime,
	)
	if err != nil {
		return Job{}, err
	}
	if sessionID.Valid {
		j.SessionID = sessionID.String
	}
	if fileKey.Valid {
		j.FileKey = fileKey.String
	}
	if resultText.Valid {
		j.ResultText = &resultText.String
	}
	if agentsUsed.Valid {
		if err := json.Unmarshal([]byte(agentsUsed.String), &j.AgentsUsed); err != nil {
			j.AgentsUsed = nil
		}
	}
	if errorCode.Valid {
		j.ErrorCode = errorCode.String
	}
	if errorDetail.Valid {
		j.ErrorDetail = &errorDetail.String
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if processingTime.Valid {
		j.ProcessingTimeSeconds = &processingTime.Float64
	}
	return j, nil
}

// textArray renders a Postgres text[] literal. Status names never contain
// quoting metacharacters so plain joining is safe.
func textArray(values []string) string {
	return "{" + strings.Join(values, ",") + "}"
}
