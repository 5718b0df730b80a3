package jobs

import (
	"context"
	"time"
)

// Repo defines persistence operations for job records. All status mutations
// go through UpdateStatus so the transition guard cannot be bypassed.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	// UpdateStatus applies a guarded status transition. It returns
	// ErrNotFound for an unknown job and *TransitionError when the job is
	// not in a state the target status may be reached from.
	UpdateStatus(ctx context.Context, jobID, status string, update StatusUpdate) error
	// List returns recent jobs newest-first, for operational inspection.
	List(ctx context.Context, limit int) ([]Job, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	// CountCached returns how many jobs were answered from the cache.
	CountCached(ctx context.Context) (int64, error)
}

// StatusUpdate carries the fields written alongside a status transition.
// Nil pointers leave the stored value untouched.
type StatusUpdate struct {
	ResultText            *string
	AgentsUsed            []string
	ErrorCode             *string
	ErrorDetail           *string
	CachedResult          *bool
	StartedAt             *time.Time
	CompletedAt           *time.Time
	ProcessingTimeSeconds *float64
	// ClearFileKey empties the stored object key once the worker has
	// removed the staged upload.
	ClearFileKey bool
}

// allowedPrior maps a target status to the statuses a job may currently be
// in for the transition to apply. PENDING -> SUCCESS is the submission-time
// cache-hit fast path; FAILURE from PENDING covers enqueue failures.
var allowedPrior = map[string][]string{
	StatusProcessing: {StatusPending},
	StatusSuccess:    {StatusPending, StatusProcessing},
	StatusFailure:    {StatusPending, StatusProcessing},
}

func priorStatuses(target string) ([]string, bool) {
	prior, ok := allowedPrior[target]
	return prior, ok
}

func statusAllowed(current, target string) bool {
	prior, ok := allowedPrior[target]
	if !ok {
		return false
	}
	for _, s := range prior {
		if s == current {
			return true
		}
	}
	return false
}
