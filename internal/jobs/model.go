package jobs

import "time"

// Job statuses. A job is created PENDING, moves to PROCESSING when a worker
// picks it up, and ends in SUCCESS or FAILURE. Both terminal states are final.
// A cache hit at submission short-circuits PENDING -> SUCCESS without ever
// entering PROCESSING.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusSuccess    = "SUCCESS"
	StatusFailure    = "FAILURE"
)

// Job is one submitted analysis request and its tracked lifecycle.
type Job struct {
	ID          string `json:"job_id"`
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint"`
	RequestID   string `json:"requestId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`

	FileName      string `json:"fileName"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	// FileKey locates the staged upload in the object store; cleared once
	// the worker has cleaned up after processing.
	FileKey string `json:"-"`
	Query   string `json:"query"`

	ResultText   *string  `json:"resultText,omitempty"`
	AgentsUsed   []string `json:"agentsUsed,omitempty"`
	ErrorCode    string   `json:"errorCode,omitempty"`
	ErrorDetail  *string  `json:"errorDetail,omitempty"`
	CachedResult bool     `json:"cachedResult"`

	CreatedAt             time.Time  `json:"createdAt"`
	StartedAt             *time.Time `json:"startedAt,omitempty"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	ProcessingTimeSeconds *float64   `json:"processingTimeSeconds,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j Job) Terminal() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailure
}

// CacheEntry is a previously computed report keyed by content fingerprint.
type CacheEntry struct {
	Fingerprint  string    `json:"fingerprint"`
	FileName     string    `json:"fileName"`
	ResultText   string    `json:"resultText"`
	AgentsUsed   []string  `json:"agentsUsed"`
	HitCount     int64     `json:"hitCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// CacheStats aggregates the cache store for the /stats endpoint.
type CacheStats struct {
	Entries   int64 `json:"entries"`
	TotalHits int64 `json:"hits"`
}

// HitRate returns hits / (hits + entries). Every entry was one computed
// miss and every hit a reuse, so this is the share of submissions answered
// from cache. Returns 0 for an empty cache.
func (s CacheStats) HitRate() float64 {
	total := s.TotalHits + s.Entries
	if total == 0 {
		return 0
	}
	return float64(s.TotalHits) / float64(total)
}

// Stats is the read-only aggregate over the job and cache stores.
type Stats struct {
	JobCounts  map[string]int64 `json:"jobs"`
	TotalJobs  int64            `json:"totalJobs"`
	CachedJobs int64            `json:"cachedJobs"`
	Cache      CacheStats       `json:"cache"`
	HitRate    float64          `json:"cacheHitRate"`
}
