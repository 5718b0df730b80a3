package jobs

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repo used in development mode and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]Job)}
}

func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, jobID, status string, update StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if !statusAllowed(job.Status, status) {
		return &TransitionError{JobID: jobID, From: job.Status, To: status}
	}
	job.Status = status
	if update.ResultText != nil {
		v := *update.ResultText
		job.ResultText = &v
	}
	if update.AgentsUsed != nil {
		job.AgentsUsed = append([]string(nil), update.AgentsUsed...)
	}
	if update.ErrorCode != nil {
		job.ErrorCode = *update.ErrorCode
	}
	if update.ErrorDetail != nil {
		v := *update.ErrorDetail
		job.ErrorDetail = &v
	}
	if update.CachedResult != nil {
		job.CachedResult = *update.CachedResult
	}
	if update.StartedAt != nil {
		v := *update.StartedAt
		job.StartedAt = &v
	}
	if update.CompletedAt != nil {
		v := *update.CompletedAt
		job.CompletedAt = &v
	}
	if update.ProcessingTimeSeconds != nil {
		v := *update.ProcessingTimeSeconds
		job.ProcessingTimeSeconds = &v
	}
	if update.ClearFileKey {
		job.FileKey = ""
	}
	r.jobs[jobID] = job
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, limit int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int64)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *MemoryRepo) CountCached(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, job := range r.jobs {
		if job.CachedResult {
			n++
		}
	}
	return n, nil
}

var _ Repo = (*MemoryRepo)(nil)

func cloneJob(job Job) Job {
	out := job
	if job.ResultText != nil {
		v := *job.ResultText
		out.ResultText = &v
	}
	if job.AgentsUsed != nil {
		out.AgentsUsed = append([]string(nil), job.AgentsUsed...)
	}
	if job.ErrorDetail != nil {
		v := *job.ErrorDetail
		out.ErrorDetail = &v
	}
	if job.StartedAt != nil {
		v := *job.StartedAt
		out.StartedAt = &v
	}
	if job.CompletedAt != nil {
		v := *job.CompletedAt
		out.CompletedAt = &v
	}
	if job.ProcessingTimeSeconds != nil {
		v := *job.ProcessingTimeSeconds
		out.ProcessingTimeSeconds = &v
	}
	return out
}
