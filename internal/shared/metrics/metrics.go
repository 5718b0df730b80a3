package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	jobsSubmittedTotal atomic.Uint64
	jobsSucceededTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64

	cacheHitsTotal    atomic.Uint64
	cacheMissesTotal  atomic.Uint64
	redeliveriesTotal atomic.Uint64
	deadLettersTotal  atomic.Uint64

	// Analysis runs span seconds to many minutes.
	analysisDuration = newHistogram([]float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600, 1800})
)

// IncJobSubmitted increments the submitted-jobs counter.
func IncJobSubmitted() {
	jobsSubmittedTotal.Add(1)
}

// IncJobSucceeded increments the succeeded-jobs counter.
func IncJobSucceeded() {
	jobsSucceededTotal.Add(1)
}

// IncJobFailed increments the failed-jobs counter.
func IncJobFailed() {
	jobsFailedTotal.Add(1)
}

// IncCacheHit increments the cache-hit counter.
func IncCacheHit() {
	cacheHitsTotal.Add(1)
}

// IncCacheMiss increments the cache-miss counter.
func IncCacheMiss() {
	cacheMissesTotal.Add(1)
}

// IncRedelivery increments the queue redelivery counter.
func IncRedelivery() {
	redeliveriesTotal.Add(1)
}

// IncDeadLetter increments the dead-lettered message counter.
func IncDeadLetter() {
	deadLettersTotal.Add(1)
}

// ObserveAnalysisDurationSeconds records one analysis duration.
func ObserveAnalysisDurationSeconds(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "findoc_jobs_submitted_total", "Total analysis jobs submitted", jobsSubmittedTotal.Load())
	writeCounter(&buf, "findoc_jobs_succeeded_total", "Total analysis jobs completed successfully", jobsSucceededTotal.Load())
	writeCounter(&buf, "findoc_jobs_failed_total", "Total analysis jobs that ended in failure", jobsFailedTotal.Load())
	writeCounter(&buf, "findoc_cache_hits_total", "Total analysis cache hits", cacheHitsTotal.Load())
	writeCounter(&buf, "findoc_cache_misses_total", "Total analysis cache misses", cacheMissesTotal.Load())
	writeCounter(&buf, "findoc_queue_redeliveries_total", "Total job messages delivered more than once", redeliveriesTotal.Load())
	writeCounter(&buf, "findoc_queue_dead_letters_total", "Total job messages moved to the dead letter stream", deadLettersTotal.Load())
	writeHistogram(&buf, "findoc_analysis_duration_seconds", "Analysis duration in seconds", analysisDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	// counts holds per-bucket tallies; rendering accumulates them into the
	// cumulative form Prometheus expects.
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceSeconds returns the elapsed seconds since start.
func SinceSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}
