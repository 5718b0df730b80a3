package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"findoc-backend/internal/jobs"
	"findoc-backend/internal/services/health"
	"findoc-backend/internal/shared/config"
	"findoc-backend/internal/shared/metrics"
	"findoc-backend/internal/shared/server/middleware"
	"findoc-backend/internal/shared/server/respond"
)

const (
	analyzeRateGroup = "ANALYZE"
	// Uploads fan out into multi-minute agent runs; keep the intake modest.
	analyzeRatePerSecond = 0.2
	analyzeRateBurst     = 5
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config      config.Config
	JobsHandler *jobs.Handler
	Health      *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Session(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(deps.Config.MaxFileSizeBytes, false, false, false)
	}

	r.GET("/", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Root())
	})
	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Snapshot())
	})
	r.GET("/metrics", metrics.Handler())

	if deps.JobsHandler != nil {
		deps.JobsHandler.RegisterRoutes(r.Group(""), analyzeMiddleware(deps.Config)...)
	}

	return r
}

// analyzeMiddleware guards the upload route: a hard body cap above the file
// limit plus a per-session token bucket.
func analyzeMiddleware(cfg config.Config) []gin.HandlerFunc {
	maxBody := cfg.MaxFileSizeBytes*2 + 1<<20
	bodyLimit := func(c *gin.Context) {
		if maxBody > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}
		c.Next()
	}
	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			analyzeRateGroup: {Rate: analyzeRatePerSecond, Burst: analyzeRateBurst},
		},
		DefaultGroup: analyzeRateGroup,
	})
	return []gin.HandlerFunc{bodyLimit, rateLimit}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
