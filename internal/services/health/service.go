package health

import "fmt"

// ServiceName is the public name reported by health and root endpoints.
const ServiceName = "Financial Document Analyzer"

// Version is the API version reported by the root endpoint.
const Version = "1.0.0"

// Service reports service capabilities and which optional dependencies are
// wired in this deployment.
type Service struct {
	MaxFileSizeBytes int64
	QueueEnabled     bool
	DatabaseEnabled  bool
	CacheEnabled     bool
}

// NewService constructs a new health service.
func NewService(maxFileSizeBytes int64, queueEnabled, databaseEnabled, cacheEnabled bool) *Service {
	return &Service{
		MaxFileSizeBytes: maxFileSizeBytes,
		QueueEnabled:     queueEnabled,
		DatabaseEnabled:  databaseEnabled,
		CacheEnabled:     cacheEnabled,
	}
}

// Snapshot returns the detailed health payload.
func (s *Service) Snapshot() map[string]any {
	return map[string]any{
		"status":            "healthy",
		"service":           ServiceName,
		"agents_available":  []string{"financial_analyst", "verifier", "investment_advisor", "risk_assessor"},
		"supported_formats": []string{"PDF"},
		"max_file_size":     fmt.Sprintf("%dMB", s.MaxFileSizeBytes/(1<<20)),
		"features": map[string]bool{
			"queue_processing": s.QueueEnabled,
			"database":         s.DatabaseEnabled,
			"cache":            s.CacheEnabled,
		},
	}
}

// Root returns the service banner served at the API root.
func (s *Service) Root() map[string]any {
	return map[string]any{
		"message": ServiceName + " API is running",
		"version": Version,
		"status":  "healthy",
		"endpoints": map[string]string{
			"analyze": "/analyze - POST - Upload and analyze financial documents",
			"status":  "/status/{job_id} - GET - Check analysis status",
			"result":  "/result/{job_id} - GET - Fetch completed analysis",
			"stats":   "/stats - GET - Job and cache statistics",
			"health":  "/health - GET - Detailed health check",
		},
	}
}
