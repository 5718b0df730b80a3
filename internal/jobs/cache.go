package jobs

import (
	"context"
	"time"
)

// CacheStore defines the fingerprint-keyed result cache. A lookup that
// misses returns ErrCacheMiss; any other error means the store itself is
// unhealthy and callers should degrade to a miss.
type CacheStore interface {
	// Lookup returns the entry for a fingerprint and records the access
	// (hit count and last-accessed time) in the same step.
	Lookup(ctx context.Context, fingerprint string) (CacheEntry, error)
	// Store inserts an entry unless one already exists for the
	// fingerprint. The stored (canonical) entry is returned either way,
	// so concurrent writers converge on one result.
	Store(ctx context.Context, entry CacheEntry) (CacheEntry, error)
	Stats(ctx context.Context) (CacheStats, error)
	// Purge removes entries created before the cutoff that have fewer
	// than maxHits recorded hits, returning how many were removed.
	Purge(ctx context.Context, olderThan time.Duration, maxHits int64) (int64, error)
}

// DisabledCache is the CacheStore used when caching is switched off.
// Every lookup misses and stores are dropped.
type DisabledCache struct{}

func (DisabledCache) Lookup(ctx context.Context, fingerprint string) (CacheEntry, error) {
	return CacheEntry{}, ErrCacheMiss
}

func (DisabledCache) Store(ctx context.Context, entry CacheEntry) (CacheEntry, error) {
	return entry, nil
}

func (DisabledCache) Stats(ctx context.Context) (CacheStats, error) {
	return CacheStats{}, nil
}

func (DisabledCache) Purge(ctx context.Context, olderThan time.Duration, maxHits int64) (int64, error) {
	return 0, nil
}

var _ CacheStore = DisabledCache{}
