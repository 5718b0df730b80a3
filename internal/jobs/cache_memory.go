package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-memory CacheStore used in development mode and tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CacheEntry)}
}

func (c *MemoryCache) Lookup(ctx context.Context, fingerprint string) (CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return CacheEntry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		return CacheEntry{}, ErrCacheMiss
	}
	entry.HitCount++
	entry.LastAccessed = time.Now().UTC()
	c.entries[fingerprint] = entry
	return cloneEntry(entry), nil
}

func (c *MemoryCache) Store(ctx context.Context, entry CacheEntry) (CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return CacheEntry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[entry.Fingerprint]; ok {
		return cloneEntry(existing), nil
	}
	entry.HitCount = 0
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.LastAccessed = entry.CreatedAt
	c.entries[entry.Fingerprint] = entry
	return cloneEntry(entry), nil
}

func (c *MemoryCache) Stats(ctx context.Context) (CacheStats, error) {
	if err := ctx.Err(); err != nil {
		return CacheStats{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var stats CacheStats
	stats.Entries = int64(len(c.entries))
	for _, entry := range c.entries {
		stats.TotalHits += entry.HitCount
	}
	return stats, nil
}

func (c *MemoryCache) Purge(ctx context.Context, olderThan time.Duration, maxHits int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int64
	for fingerprint, entry := range c.entries {
		if entry.CreatedAt.Before(cutoff) && entry.HitCount < maxHits {
			delete(c.entries, fingerprint)
			removed++
		}
	}
	return removed, nil
}

var _ CacheStore = (*MemoryCache)(nil)

func cloneEntry(entry CacheEntry) CacheEntry {
	out := entry
	if entry.AgentsUsed != nil {
		out.AgentsUsed = append([]string(nil), entry.AgentsUsed...)
	}
	return out
}
