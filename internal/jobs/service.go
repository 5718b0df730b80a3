package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"findoc-backend/internal/queue"
	"findoc-backend/internal/shared/metrics"
	"findoc-backend/internal/shared/storage/object"
	"findoc-backend/internal/shared/telemetry"
)

// Extractor pulls plain text out of an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// AnalysisReport is the agent pipeline's output for one document.
type AnalysisReport struct {
	Text       string
	AgentsUsed []string
}

// Analyzer runs the agent pipeline over extracted document text.
type Analyzer interface {
	Analyze(ctx context.Context, documentText, query string) (AnalysisReport, error)
}

// Service owns the job lifecycle. All status transitions go through it:
// PENDING -> PROCESSING -> SUCCESS | FAILURE, with a PENDING -> SUCCESS fast
// path when the cache already holds a report for the submitted content.
type Service struct {
	Repo      Repo
	Cache     CacheStore
	Store     object.ObjectStore
	Queue     queue.Client
	Extractor Extractor
	Analyzer  Analyzer
	// Timeout caps a single analysis run. Zero means no ceiling.
	Timeout          time.Duration
	MaxFileSizeBytes int64
}

// SubmitInput is one analysis submission. Data holds the full document; the
// fingerprint and the upload both need the bytes, so the handler reads the
// multipart part once and passes it through.
type SubmitInput struct {
	FileName  string
	Data      []byte
	Query     string
	SessionID string
}

// Submit validates the input, consults the cache, and either finishes the
// job immediately from a cached report or stages the upload and enqueues it
// for a worker. It never waits for the analysis itself.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Job, error) {
	if err := s.validate(input); err != nil {
		return Job{}, err
	}

	normalized := NormalizeQuery(input.Query)
	fingerprint := Fingerprint(input.Data, normalized)
	now := time.Now().UTC()
	job := Job{
		ID:            uuid.NewString(),
		Status:        StatusPending,
		Fingerprint:   fingerprint,
		RequestID:     requestIDFromContext(ctx),
		SessionID:     input.SessionID,
		FileName:      input.FileName,
		FileSizeBytes: int64(len(input.Data)),
		Query:         normalized,
		CreatedAt:     now,
	}

	entry, lookupErr := s.Cache.Lookup(ctx, fingerprint)
	if lookupErr == nil {
		return s.submitFromCache(ctx, job, entry)
	}
	if !errors.Is(lookupErr, ErrCacheMiss) {
		telemetry.Warn("jobs.cache_lookup_failed", map[string]any{
			"request_id":  job.RequestID,
			"fingerprint": fingerprint,
			"error":       lookupErr.Error(),
		})
	}
	metrics.IncCacheMiss()

	job.FileKey = uploadKey(job.ID)
	if _, _, err := s.Store.Save(ctx, job.FileKey, bytes.NewReader(input.Data)); err != nil {
		return Job{}, fmt.Errorf("%w: stage upload: %v", ErrStoreUnavailable, err)
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		s.cleanupUpload(job)
		return Job{}, fmt.Errorf("%w: create job: %v", ErrStoreUnavailable, err)
	}
	metrics.IncJobSubmitted()
	telemetry.Info("job.status", map[string]any{
		"request_id":        job.RequestID,
		"session_id":        job.SessionID,
		"job_id":            job.ID,
		"status":            StatusPending,
		"status_transition": "->PENDING",
		"file_name":         job.FileName,
		"file_size_bytes":   job.FileSizeBytes,
	})

	if s.Queue != nil {
		msg := queue.Message{
			JobID:      job.ID,
			RequestID:  job.RequestID,
			EnqueuedAt: now.Format(time.RFC3339Nano),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			cause := fmt.Errorf("%w: enqueue job: %v", ErrStoreUnavailable, err)
			s.failJob(ctx, job, cause, time.Time{})
			return Job{}, cause
		}
	} else {
		// No broker configured: run on a goroutine so submission still
		// returns immediately.
		go s.runInline(backgroundWithRequestID(ctx), job.ID)
	}

	return job, nil
}

// submitFromCache finishes a submission directly from a cached report. The
// job is recorded PENDING and immediately moved to SUCCESS without ever
// entering PROCESSING.
func (s *Service) submitFromCache(ctx context.Context, job Job, entry CacheEntry) (Job, error) {
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("%w: create job: %v", ErrStoreUnavailable, err)
	}
	metrics.IncJobSubmitted()
	metrics.IncCacheHit()

	completedAt := time.Now().UTC()
	processingTime := completedAt.Sub(job.CreatedAt).Seconds()
	cached := true
	update := StatusUpdate{
		ResultText:            &entry.ResultText,
		AgentsUsed:            entry.AgentsUsed,
		CachedResult:          &cached,
		CompletedAt:           &completedAt,
		ProcessingTimeSeconds: &processingTime,
	}
	if err := s.Repo.UpdateStatus(ctx, job.ID, StatusSuccess, update); err != nil {
		return Job{}, fmt.Errorf("%w: finalize cached job: %v", ErrStoreUnavailable, err)
	}
	metrics.IncJobSucceeded()
	telemetry.Info("job.status", map[string]any{
		"request_id":        job.RequestID,
		"session_id":        job.SessionID,
		"job_id":            job.ID,
		"status":            StatusSuccess,
		"status_transition": "PENDING->SUCCESS",
		"cached_result":     true,
		"cache_hit_count":   entry.HitCount,
	})

	return s.Repo.GetByID(ctx, job.ID)
}

// Process executes one job on the worker side. Redeliveries are expected:
// a terminal record is a no-op success, and a record already PROCESSING
// (a crashed worker's leftover) is resumed without re-transitioning.
// A nil return means the delivery is handled, including terminal FAILURE;
// an error means a transient condition and the message should be retried.
func (s *Service) Process(ctx context.Context, jobID string) error {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job lookup %s: %w", jobID, err)
	}
	if job.Terminal() {
		telemetry.Info("jobs.redelivery_terminal", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     job.ID,
			"status":     job.Status,
		})
		return nil
	}

	startedAt := time.Now().UTC()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}

	if job.Status == StatusPending {
		if err := s.Repo.UpdateStatus(ctx, jobID, StatusProcessing, StatusUpdate{StartedAt: &startedAt}); err != nil {
			var transition *TransitionError
			if !errors.As(err, &transition) {
				return fmt.Errorf("set processing: %w", err)
			}
			// Lost a race with another delivery of the same job.
			job, err = s.Repo.GetByID(ctx, jobID)
			if err != nil {
				return fmt.Errorf("job lookup %s: %w", jobID, err)
			}
			if job.Terminal() {
				return nil
			}
		} else {
			job.Status = StatusProcessing
			job.StartedAt = &startedAt
			telemetry.Info("job.status", map[string]any{
				"request_id":        requestIDFromContext(ctx),
				"job_id":            job.ID,
				"status":            StatusProcessing,
				"status_transition": "PENDING->PROCESSING",
			})
		}
	} else {
		telemetry.Warn("jobs.resume_after_redelivery", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     job.ID,
			"status":     job.Status,
		})
	}

	return s.execute(ctx, job, startedAt)
}

func (s *Service) execute(ctx context.Context, job Job, startedAt time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.failJob(ctx, job, fmt.Errorf("panic: %v", r), startedAt)
		}
	}()

	if s.Store == nil || s.Extractor == nil || s.Analyzer == nil {
		return s.failJob(ctx, job, errors.New("analysis dependencies not configured"), startedAt)
	}

	// An identical submission may have completed between enqueue and
	// pickup, so check the cache again before doing any work.
	entry, lookupErr := s.Cache.Lookup(ctx, job.Fingerprint)
	if lookupErr == nil {
		metrics.IncCacheHit()
		return s.succeedJob(ctx, job, entry.ResultText, entry.AgentsUsed, true, startedAt)
	}
	if !errors.Is(lookupErr, ErrCacheMiss) {
		telemetry.Warn("jobs.cache_lookup_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"job_id":      job.ID,
			"fingerprint": job.Fingerprint,
			"error":       lookupErr.Error(),
		})
	}

	data, err := s.loadDocument(ctx, job.FileKey)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.failJob(ctx, job, fmt.Errorf("load document %s: %w", job.FileKey, err), startedAt)
	}

	text, err := s.Extractor.Extract(ctx, bytes.NewReader(data))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.failJob(ctx, job, fmt.Errorf("%w: %v", ErrDocumentUnreadable, err), startedAt)
	}

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	report, err := s.Analyzer.Analyze(runCtx, text, job.Query)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.failJob(ctx, job, fmt.Errorf("%w: %v", ErrAnalysisFailed, err), startedAt)
	}

	if err := s.succeedJob(ctx, job, report.Text, report.AgentsUsed, false, startedAt); err != nil {
		return err
	}

	if _, storeErr := s.Cache.Store(ctx, CacheEntry{
		Fingerprint: job.Fingerprint,
		FileName:    job.FileName,
		ResultText:  report.Text,
		AgentsUsed:  report.AgentsUsed,
	}); storeErr != nil {
		telemetry.Warn("jobs.cache_store_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"job_id":      job.ID,
			"fingerprint": job.Fingerprint,
			"error":       storeErr.Error(),
		})
	}
	return nil
}

// GetStatus returns the current job record.
func (s *Service) GetStatus(ctx context.Context, jobID string) (Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return Job{}, fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, jobID)
}

// GetResult returns a terminal job record, or the current record together
// with ErrNotReady when the job is still in flight.
func (s *Service) GetResult(ctx context.Context, jobID string) (Job, error) {
	job, err := s.GetStatus(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if !job.Terminal() {
		return job, ErrNotReady
	}
	return job, nil
}

// Stats aggregates job counts and cache totals. A cache store error only
// zeroes the cache section; job store errors are fatal.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.Repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: count jobs: %v", ErrStoreUnavailable, err)
	}
	cached, err := s.Repo.CountCached(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: count cached jobs: %v", ErrStoreUnavailable, err)
	}
	stats := Stats{JobCounts: counts, CachedJobs: cached}
	for _, n := range counts {
		stats.TotalJobs += n
	}
	cacheStats, err := s.Cache.Stats(ctx)
	if err != nil {
		telemetry.Warn("jobs.cache_stats_failed", map[string]any{"error": err.Error()})
		return stats, nil
	}
	stats.Cache = cacheStats
	stats.HitRate = cacheStats.HitRate()
	return stats, nil
}

func (s *Service) validate(input SubmitInput) error {
	if strings.TrimSpace(input.FileName) == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if strings.ToLower(filepath.Ext(input.FileName)) != ".pdf" {
		return fmt.Errorf("%w: only pdf files are supported", ErrInvalidInput)
	}
	if len(input.Data) == 0 {
		return fmt.Errorf("%w: uploaded file is empty", ErrInvalidInput)
	}
	if s.MaxFileSizeBytes > 0 && int64(len(input.Data)) > s.MaxFileSizeBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, s.MaxFileSizeBytes)
	}
	return nil
}

func (s *Service) succeedJob(ctx context.Context, job Job, resultText string, agents []string, cached bool, startedAt time.Time) error {
	completedAt := time.Now().UTC()
	processingTime := completedAt.Sub(startedAt).Seconds()
	update := StatusUpdate{
		ResultText:            &resultText,
		AgentsUsed:            agents,
		CachedResult:          &cached,
		CompletedAt:           &completedAt,
		ProcessingTimeSeconds: &processingTime,
		ClearFileKey:          true,
	}
	if err := s.Repo.UpdateStatus(ctx, job.ID, StatusSuccess, update); err != nil {
		var transition *TransitionError
		if errors.As(err, &transition) {
			telemetry.Warn("jobs.success_after_terminal", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
			s.cleanupUpload(job)
			return nil
		}
		return fmt.Errorf("set success: %w", err)
	}
	s.cleanupUpload(job)
	metrics.IncJobSucceeded()
	metrics.ObserveAnalysisDurationSeconds(processingTime)
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"session_id":        job.SessionID,
		"job_id":            job.ID,
		"status":            StatusSuccess,
		"status_transition": job.Status + "->" + StatusSuccess,
		"cached_result":     cached,
		"duration_seconds":  processingTime,
	})
	return nil
}

// failJob records a terminal FAILURE with a classified code and sanitized
// detail. The write uses a fresh context so a canceled request cannot block
// the terminal transition.
func (s *Service) failJob(ctx context.Context, job Job, cause error, startedAt time.Time) error {
	code := classifyFailure(cause)
	detail := sanitizeError(cause)
	completedAt := time.Now().UTC()
	var processingTime float64
	if !startedAt.IsZero() {
		processingTime = completedAt.Sub(startedAt).Seconds()
	}
	update := StatusUpdate{
		ErrorCode:             &code,
		ErrorDetail:           &detail,
		CompletedAt:           &completedAt,
		ProcessingTimeSeconds: &processingTime,
		ClearFileKey:          true,
	}
	if updateErr := s.Repo.UpdateStatus(context.Background(), job.ID, StatusFailure, update); updateErr != nil {
		var transition *TransitionError
		if errors.As(updateErr, &transition) {
			s.cleanupUpload(job)
			return nil
		}
		telemetry.Error("jobs.fail_update_failed", map[string]any{
			"job_id": job.ID,
			"error":  updateErr.Error(),
			"cause":  detail,
		})
		return fmt.Errorf("set failure: %w", updateErr)
	}
	s.cleanupUpload(job)
	metrics.IncJobFailed()
	if !startedAt.IsZero() {
		metrics.ObserveAnalysisDurationSeconds(processingTime)
	}
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"session_id":        job.SessionID,
		"job_id":            job.ID,
		"status":            StatusFailure,
		"status_transition": job.Status + "->" + StatusFailure,
		"error_code":        code,
		"error_detail":      detail,
		"duration_seconds":  processingTime,
	})
	return nil
}

func (s *Service) loadDocument(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("document storage key is empty")
	}
	body, err := s.Store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// cleanupUpload removes the staged document after processing. Best effort:
// an orphaned file never blocks the job outcome.
func (s *Service) cleanupUpload(job Job) {
	if job.FileKey == "" || s.Store == nil {
		return
	}
	if err := s.Store.Delete(context.Background(), job.FileKey); err != nil {
		telemetry.Warn("jobs.upload_cleanup_failed", map[string]any{
			"job_id":   job.ID,
			"file_key": job.FileKey,
			"error":    err.Error(),
		})
	}
}

func (s *Service) runInline(ctx context.Context, jobID string) {
	if err := s.Process(ctx, jobID); err != nil {
		telemetry.Error("jobs.inline_process_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     jobID,
			"error":      err.Error(),
		})
	}
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, ErrDocumentUnreadable) {
		return ErrorCodeDocUnreadable
	}
	if errors.Is(err, ErrInvalidInput) {
		return ErrorCodeInputInvalid
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeAnalysisTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout") {
		return ErrorCodeAnalysisTimeout
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return ErrorCodeStore
	}
	if strings.Contains(msg, "load document") || strings.Contains(msg, "storage") || strings.Contains(msg, "set processing") || strings.Contains(msg, "set success") {
		return ErrorCodeStore
	}
	if errors.Is(err, ErrAnalysisFailed) {
		return ErrorCodeAnalysisFailed
	}
	if strings.Contains(msg, "llm") || strings.Contains(msg, "agent") {
		return ErrorCodeAnalysisFailed
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func uploadKey(jobID string) string {
	return fmt.Sprintf("financial_document_%s.pdf", jobID)
}
