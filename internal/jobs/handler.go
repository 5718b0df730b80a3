package jobs

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"findoc-backend/internal/sessions"
	"findoc-backend/internal/shared/server/middleware"
	"findoc-backend/internal/shared/server/respond"
	"findoc-backend/internal/shared/util"
)

// Handler wires HTTP handlers to the jobs service.
type Handler struct {
	Svc      *Service
	Sessions *sessions.Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, sess *sessions.Service) *Handler {
	return &Handler{Svc: svc, Sessions: sess}
}

// RegisterRoutes attaches analysis routes to the router group. Extra
// middleware applies to the upload route only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, analyzeMW ...gin.HandlerFunc) {
	analyze := append([]gin.HandlerFunc{}, analyzeMW...)
	analyze = append(analyze, h.analyze)
	rg.POST("/analyze", analyze...)
	rg.GET("/status/:job_id", h.status)
	rg.GET("/result/:job_id", h.result)
	rg.GET("/stats", h.stats)
}

func (h *Handler) analyze(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid,
				fmt.Sprintf("File too large. Maximum size is %dMB.", h.Svc.MaxFileSizeBytes/(1<<20)), nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid, "file is required", nil)
		return
	}
	fileName, err := util.SanitizeFileName(fileHeader.Filename)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid, "invalid file name", nil)
		return
	}
	if strings.ToLower(filepath.Ext(fileName)) != ".pdf" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid,
			"Only PDF files are supported. Please upload a PDF financial document.", nil)
		return
	}
	if max := h.Svc.MaxFileSizeBytes; max > 0 && fileHeader.Size > max {
		respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid,
			fmt.Sprintf("File too large. Maximum size is %dMB.", max/(1<<20)), nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid, "could not read uploaded file", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid, "could not read uploaded file", nil)
		return
	}

	sessionID := middleware.SessionIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.Submit(ctx, SubmitInput{
		FileName:  fileName,
		Data:      data,
		Query:     c.PostForm("query"),
		SessionID: sessionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid, "invalid submission", nil)
		case errors.Is(err, ErrStoreUnavailable):
			respond.Error(c, http.StatusServiceUnavailable, ErrorCodeStore, "analysis backend unavailable", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to submit analysis", nil)
		}
		return
	}

	if h.Sessions != nil {
		h.Sessions.RecordSubmission(ctx, sessionID, c.ClientIP(), c.Request.UserAgent())
	}

	message := "Analysis started. Poll the status endpoint for progress."
	if job.Status == StatusSuccess {
		message = "Analysis completed (from cache)"
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": message,
		"file_info": gin.H{
			"filename": job.FileName,
			"size_mb":  roundMB(job.FileSizeBytes),
		},
		"links": gin.H{
			"status": "/status/" + job.ID,
			"result": "/result/" + job.ID,
		},
	})
}

func (h *Handler) status(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	payload := gin.H{
		"job_id":   job.ID,
		"status":   job.Status,
		"progress": progressFor(job.Status),
		"message":  statusMessage(job.Status),
	}
	if job.Status == StatusFailure {
		payload["error"] = errorBody(job)
	}
	respond.OK(c, payload)
}

func (h *Handler) result(c *gin.Context) {
	jobID := c.Param("job_id")
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.GetResult(ctx, jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotReady):
			respond.JSON(c, http.StatusAccepted, gin.H{
				"job_id":   job.ID,
				"status":   job.Status,
				"code":     ErrorCodeNotReady,
				"progress": progressFor(job.Status),
				"message":  "Analysis has not finished yet. Poll the status endpoint.",
			})
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "job not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid, "job id is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to load result", nil)
		}
		return
	}

	payload := gin.H{
		"job_id": job.ID,
		"status": job.Status,
		"query":  job.Query,
		"file_info": gin.H{
			"filename": job.FileName,
			"size_mb":  roundMB(job.FileSizeBytes),
		},
	}
	if job.ProcessingTimeSeconds != nil {
		payload["processing_time_seconds"] = *job.ProcessingTimeSeconds
	}
	if job.CompletedAt != nil {
		payload["completed_at"] = *job.CompletedAt
	}
	switch job.Status {
	case StatusSuccess:
		var result string
		if job.ResultText != nil {
			result = *job.ResultText
		}
		payload["analysis"] = gin.H{
			"result":      result,
			"cached":      job.CachedResult,
			"agents_used": job.AgentsUsed,
		}
	case StatusFailure:
		payload["error"] = errorBody(job)
	}
	respond.OK(c, payload)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.Svc.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to load stats", nil)
		return
	}
	respond.OK(c, gin.H{
		"jobs": gin.H{
			"by_status": stats.JobCounts,
			"total":     stats.TotalJobs,
			"cached":    stats.CachedJobs,
		},
		"cache": gin.H{
			"entries":  stats.Cache.Entries,
			"hits":     stats.Cache.TotalHits,
			"hit_rate": stats.HitRate,
		},
	})
}

func (h *Handler) lookupJob(c *gin.Context) (Job, bool) {
	jobID := c.Param("job_id")
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.GetStatus(ctx, jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "job not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, ErrorCodeInputInvalid, "job id is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to load job", nil)
		}
		return Job{}, false
	}
	return job, true
}

func errorBody(job Job) gin.H {
	var detail string
	if job.ErrorDetail != nil {
		detail = *job.ErrorDetail
	}
	return gin.H{"code": job.ErrorCode, "detail": detail}
}

func progressFor(status string) int {
	switch status {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 50
	case StatusSuccess, StatusFailure:
		return 100
	default:
		return 0
	}
}

func statusMessage(status string) string {
	switch status {
	case StatusPending:
		return "Analysis queued"
	case StatusProcessing:
		return "AI agents processing document..."
	case StatusSuccess:
		return "Analysis completed successfully!"
	case StatusFailure:
		return "Analysis failed"
	default:
		return "Unknown status"
	}
}

func roundMB(sizeBytes int64) float64 {
	return math.Round(float64(sizeBytes)/(1<<20)*100) / 100
}
