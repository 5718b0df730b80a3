package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGCache implements CacheStore using Postgres. Store relies on
// ON CONFLICT DO NOTHING so the first writer for a fingerprint wins and
// later writers read back the canonical row.
type PGCache struct {
	DB *sql.DB
}

func (c *PGCache) Lookup(ctx context.Context, fingerprint string) (CacheEntry, error) {
	const query = `
UPDATE analysis_cache
SET hit_count = hit_count + 1,
    last_accessed = now()
WHERE fingerprint = $1
RETURNING fingerprint, file_name, result_text, agents_used, hit_count, created_at, last_accessed`

	entry, err := scanCacheEntry(c.DB.QueryRowContext(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CacheEntry{}, ErrCacheMiss
		}
		return CacheEntry{}, err
	}
	return entry, nil
}

func (c *PGCache) Store(ctx context.Context, entry CacheEntry) (CacheEntry, error) {
	const insert = `
INSERT INTO analysis_cache (fingerprint, file_name, result_text, agents_used, hit_count, created_at, last_accessed)
VALUES ($1, $2, $3, $4::jsonb, 0, $5, $5)
ON CONFLICT (fingerprint) DO NOTHING`

	var agentsPayload any
	if entry.AgentsUsed != nil {
		payload, err := json.Marshal(entry.AgentsUsed)
		if err != nil {
			return CacheEntry{}, err
		}
		agentsPayload = payload
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := c.DB.ExecContext(ctx, insert,
		entry.Fingerprint,
		entry.FileName,
		entry.ResultText,
		agentsPayload,
		createdAt,
	); err != nil {
		return CacheEntry{}, err
	}

	const query = `
SELECT fingerprint, file_name, result_text, agents_used, hit_count, created_at, last_accessed
FROM analysis_cache
WHERE fingerprint = $1
LIMIT 1`

	return scanCacheEntry(c.DB.QueryRowContext(ctx, query, entry.Fingerprint))
}

func (c *PGCache) Stats(ctx context.Context) (CacheStats, error) {
	const query = `
SELECT COUNT(*), COALESCE(SUM(hit_count), 0)
FROM analysis_cache`

	var stats CacheStats
	if err := c.DB.QueryRowContext(ctx, query).Scan(&stats.Entries, &stats.TotalHits); err != nil {
		return CacheStats{}, err
	}
	return stats, nil
}

func (c *PGCache) Purge(ctx context.Context, olderThan time.Duration, maxHits int64) (int64, error) {
	const query = `
DELETE FROM analysis_cache
WHERE created_at < $1 AND hit_count < $2`

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := c.DB.ExecContext(ctx, query, cutoff, maxHits)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ CacheStore = (*PGCache)(nil)

func scanCacheEntry(row rowScanner) (CacheEntry, error) {
	var e CacheEntry
	var agentsUsed sql.NullString
	err := row.Scan(
		&e.Fingerprint,
		&e.FileName,
		&e.ResultText,
		&agentsUsed,
		&e.HitCount,
		&e.CreatedAt,
		&e.LastAccessed,
	)
	if err != nil {
		return CacheEntry{}, err
	}
	if agentsUsed.Valid {
		if err := json.Unmarshal([]byte(agentsUsed.String), &e.AgentsUsed); err != nil {
			e.AgentsUsed = nil
		}
	}
	return e, nil
}
