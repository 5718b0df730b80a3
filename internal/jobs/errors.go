package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown job id, distinct from all
	// business errors.
	ErrNotFound = errors.New("job not found")
	// ErrNotReady is returned when a result is requested before the job
	// reached a terminal state.
	ErrNotReady = errors.New("job not ready")
	// ErrInvalidInput rejects a submission before any job record exists.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDocumentUnreadable marks corrupt or non-PDF uploads surfaced by the
	// text extractor.
	ErrDocumentUnreadable = errors.New("document unreadable")
	// ErrAnalysisFailed covers agent pipeline errors, including timeouts.
	ErrAnalysisFailed = errors.New("analysis failed")
	// ErrStoreUnavailable marks an unreachable backing store. Fatal for the
	// job record store; the cache store degrades to miss instead.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCacheMiss is the cache store's no-entry result.
	ErrCacheMiss = errors.New("cache miss")
)

// Error codes persisted on failed jobs and returned in API payloads.
const (
	ErrorCodeInputInvalid    = "INPUT_INVALID"
	ErrorCodeDocUnreadable   = "DOC_UNREADABLE"
	ErrorCodeAnalysisFailed  = "ANALYSIS_FAILED"
	ErrorCodeAnalysisTimeout = "ANALYSIS_TIMEOUT"
	ErrorCodeStore           = "STORE_UNAVAILABLE"
	ErrorCodeNotFound        = "NOT_FOUND"
	ErrorCodeNotReady        = "NOT_READY"
	ErrorCodeTransition      = "INVALID_TRANSITION"
	ErrorCodeInternal        = "INTERNAL_ERROR"
)

// TransitionError signals a status change the state machine forbids, such as
// writing over a terminal state. It indicates a programming error in the
// caller, never a recoverable condition.
type TransitionError struct {
	JobID string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s->%s for job %s", e.From, e.To, e.JobID)
}
