package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	DatabaseURL string

	RedisURL       string
	QueueStream    string
	QueueGroup     string
	QueueDLQStream string

	WorkerConcurrency      int
	AnalysisTimeoutSeconds int

	MaxFileSizeBytes int64
	ObjectStoreType  string
	UploadDir        string
	AWSRegion        string
	S3Bucket         string
	S3Prefix         string

	OpenAIAPIKey   string
	LLMModel       string
	LLMTemperature float64

	SerperAPIKey string

	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		DatabaseURL: dbURL,

		RedisURL:       getEnv("REDIS_URL", ""),
		QueueStream:    getEnv("QUEUE_STREAM", "findoc:jobs"),
		QueueGroup:     getEnv("QUEUE_GROUP", "findoc-workers"),
		QueueDLQStream: getEnv("QUEUE_DLQ_STREAM", "findoc:jobs:dlq"),

		WorkerConcurrency:      getEnvInt("WORKER_CONCURRENCY", 1),
		AnalysisTimeoutSeconds: getEnvInt("ANALYSIS_TIMEOUT_SECONDS", 1800),

		MaxFileSizeBytes: int64(getEnvInt("MAX_FILE_SIZE_MB", 10)) << 20,
		ObjectStoreType:  normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		UploadDir:        getEnv("UPLOAD_DIR", "./data"),
		AWSRegion:        getEnv("AWS_REGION", ""),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Prefix:         getEnv("S3_PREFIX", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),

		SerperAPIKey: getEnv("SERPER_API_KEY", ""),

		CacheEnabled: getEnvBool("CACHE_ENABLED", true),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("invalid integer for %s: %q, using %d", key, raw, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		log.Printf("invalid float for %s: %q, using %g", key, raw, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
