package main

// Inspect jobs and the analysis cache:
//   go run ./cmd/dbcheck -stats
//   go run ./cmd/dbcheck -job <id>
//   go run ./cmd/dbcheck -list 20
//   go run ./cmd/dbcheck -purge -older-than 30 -max-hits 2

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"findoc-backend/internal/jobs"
	"findoc-backend/internal/shared/config"
	"findoc-backend/internal/shared/storage/db"
)

func main() {
	cfg := config.Load()

	stats := flag.Bool("stats", false, "Print job and cache statistics")
	jobID := flag.String("job", "", "Print one job record by id")
	list := flag.Int("list", 0, "List the N most recent jobs")
	purge := flag.Bool("purge", false, "Purge old low-hit cache entries")
	olderThan := flag.Int("older-than", 30, "Purge entries created more than this many days ago")
	maxHits := flag.Int64("max-hits", 2, "Purge entries with fewer than this many hits")
	flag.Parse()

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		exitErr("DATABASE_URL is required")
	}

	ctx := context.Background()
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		exitErr(fmt.Sprintf("connect database: %v", err))
	}
	defer sqlDB.Close()

	repo := &jobs.PGRepo{DB: sqlDB}
	cache := &jobs.PGCache{DB: sqlDB}

	switch {
	case strings.TrimSpace(*jobID) != "":
		printJob(ctx, repo, strings.TrimSpace(*jobID))
	case *purge:
		runPurge(ctx, cache, *olderThan, *maxHits)
	case *list > 0:
		printRecent(ctx, repo, *list)
	case *stats:
		printStats(ctx, repo, cache)
	default:
		printStats(ctx, repo, cache)
	}
}

func printStats(ctx context.Context, repo jobs.Repo, cache jobs.CacheStore) {
	svc := &jobs.Service{Repo: repo, Cache: cache}
	stats, err := svc.Stats(ctx)
	if err != nil {
		exitErr(fmt.Sprintf("read stats: %v", err))
	}
	printJSON(stats)
}

func printJob(ctx context.Context, repo jobs.Repo, jobID string) {
	job, err := repo.GetByID(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		exitErr(fmt.Sprintf("job not found: %s", jobID))
	}
	if err != nil {
		exitErr(fmt.Sprintf("read job: %v", err))
	}
	printJSON(job)
}

func printRecent(ctx context.Context, repo jobs.Repo, limit int) {
	recent, err := repo.List(ctx, limit)
	if err != nil {
		exitErr(fmt.Sprintf("list jobs: %v", err))
	}
	for _, job := range recent {
		fmt.Printf("%s  %-10s  %-20s  %s\n",
			job.ID, job.Status, job.CreatedAt.Format(time.RFC3339), job.FileName)
	}
	fmt.Printf("%d jobs\n", len(recent))
}

func runPurge(ctx context.Context, cache jobs.CacheStore, olderThanDays int, maxHits int64) {
	removed, err := cache.Purge(ctx, time.Duration(olderThanDays)*24*time.Hour, maxHits)
	if err != nil {
		exitErr(fmt.Sprintf("purge cache: %v", err))
	}
	fmt.Printf("purged %d cache entries older than %dd with fewer than %d hits\n",
		removed, olderThanDays, maxHits)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr(fmt.Sprintf("encode output: %v", err))
	}
	_, _ = os.Stdout.Write(out)
	_, _ = os.Stdout.Write([]byte("\n"))
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
