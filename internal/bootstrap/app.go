package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"findoc-backend/internal/agents"
	"findoc-backend/internal/extract"
	"findoc-backend/internal/jobs"
	"findoc-backend/internal/llm"
	openai "findoc-backend/internal/llm/openai"
	"findoc-backend/internal/queue"
	"findoc-backend/internal/services/health"
	"findoc-backend/internal/sessions"
	"findoc-backend/internal/shared/config"
	"findoc-backend/internal/shared/server"
	"findoc-backend/internal/shared/storage/db"
	"findoc-backend/internal/shared/storage/object"
	localstore "findoc-backend/internal/shared/storage/object/local"
	s3store "findoc-backend/internal/shared/storage/object/s3"
	"findoc-backend/internal/websearch"
)

// dbStartupWait bounds how long the worker waits for the database at boot.
const dbStartupWait = 60 * time.Second

// App holds shared dependencies for the API server and the queue worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	JobsRepo     jobs.Repo
	Cache        jobs.CacheStore
	SessionsRepo sessions.Repo

	JobsService     *jobs.Service
	JobProcessor    JobProcessor
	SessionsService *sessions.Service
	JobsHandler     *jobs.Handler
	Health          *health.Service
}

// JobProcessor allows callers to override job processing for tests.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Build prepares shared dependencies for the API server and wires the router.
func Build(cfg config.Config) (*App, error) {
	return build(cfg, db.OptionsFromEnv(db.DefaultServerOptions()), false)
}

// BuildWorker prepares shared dependencies for the queue worker, waiting for
// the database to come up instead of failing fast.
func BuildWorker(cfg config.Config) (*App, error) {
	return build(cfg, db.OptionsFromEnv(db.DefaultWorkerOptions()), true)
}

func build(cfg config.Config, dbOpts db.Options, waitForDB bool) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, dbOpts, waitForDB)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      app.Config,
		JobsHandler: app.JobsHandler,
		Health:      app.Health,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, opts db.Options, wait bool) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory stores")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if wait {
		sqlDB, err = db.ConnectWithRetry(ctx, cfg.DatabaseURL, opts, dbStartupWait)
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory stores: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: migrations failed; using in-memory stores: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.UploadDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	return queue.NewRedisClient(ctx, queue.RedisOptions{
		URL:       cfg.RedisURL,
		Stream:    cfg.QueueStream,
		Group:     cfg.QueueGroup,
		DLQStream: cfg.QueueDLQStream,
	})
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var (
		jobsRepo     jobs.Repo
		sessionsRepo sessions.Repo
	)
	if app.DB != nil {
		jobsRepo = &jobs.PGRepo{DB: app.DB}
		sessionsRepo = &sessions.PGRepo{DB: app.DB}
	} else {
		jobsRepo = jobs.NewMemoryRepo()
		sessionsRepo = sessions.NewMemoryRepo()
	}

	var cache jobs.CacheStore
	switch {
	case !app.Config.CacheEnabled:
		cache = jobs.DisabledCache{}
	case app.DB != nil:
		cache = &jobs.PGCache{DB: app.DB}
	default:
		cache = jobs.NewMemoryCache()
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if strings.TrimSpace(app.Config.OpenAIAPIKey) != "" {
		client, err := openai.NewClient(app.Config.OpenAIAPIKey, app.Config.LLMModel, float32(app.Config.LLMTemperature))
		if err != nil {
			return err
		}
		llmClient = client
	} else {
		log.Printf("bootstrap: OPENAI_API_KEY empty; analysis jobs will fail until configured")
	}

	var search agents.Searcher
	if strings.TrimSpace(app.Config.SerperAPIKey) != "" {
		searchClient, err := websearch.NewClient(app.Config.SerperAPIKey)
		if err != nil {
			return err
		}
		search = searchClient
	}

	pipeline := agents.NewPipeline(llmClient, search)
	sessionsSvc := sessions.NewService(sessionsRepo)

	jobsSvc := &jobs.Service{
		Repo:             jobsRepo,
		Cache:            cache,
		Store:            app.Store,
		Queue:            app.Queue,
		Extractor:        extract.Extractor{},
		Analyzer:         pipelineAdapter{pipeline: pipeline},
		Timeout:          time.Duration(app.Config.AnalysisTimeoutSeconds) * time.Second,
		MaxFileSizeBytes: app.Config.MaxFileSizeBytes,
	}

	app.JobsRepo = jobsRepo
	app.Cache = cache
	app.SessionsRepo = sessionsRepo
	app.SessionsService = sessionsSvc
	app.JobsService = jobsSvc
	app.JobProcessor = jobsSvc
	app.JobsHandler = jobs.NewHandler(jobsSvc, sessionsSvc)
	app.Health = health.NewService(
		app.Config.MaxFileSizeBytes,
		app.Queue != nil,
		app.DB != nil,
		app.Config.CacheEnabled,
	)

	return nil
}

// pipelineAdapter maps the agent pipeline onto the jobs.Analyzer contract.
type pipelineAdapter struct {
	pipeline *agents.Pipeline
}

func (a pipelineAdapter) Analyze(ctx context.Context, documentText, query string) (jobs.AnalysisReport, error) {
	report, err := a.pipeline.Run(ctx, documentText, query)
	if err != nil {
		return jobs.AnalysisReport{}, err
	}
	return jobs.AnalysisReport{Text: report.Text, AgentsUsed: report.AgentsUsed}, nil
}
