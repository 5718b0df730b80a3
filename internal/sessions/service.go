package sessions

import (
	"context"
	"errors"
	"strings"

	"findoc-backend/internal/shared/telemetry"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// RecordSubmission attributes one analysis submission to a session. It is
// strictly fail-soft: attribution must never fail a submission, so errors
// are logged and swallowed.
func (s *Service) RecordSubmission(ctx context.Context, sessionID, ip, userAgent string) {
	if s == nil || s.Repo == nil {
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	err := s.Repo.Touch(ctx, Session{
		SessionID: sessionID,
		IPAddress: ip,
		UserAgent: userAgent,
	})
	if err != nil {
		telemetry.Warn("sessions.record_failed", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) GetByID(ctx context.Context, sessionID string) (Session, error) {
	if s == nil || s.Repo == nil {
		return Session{}, errors.New("sessions service not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return Session{}, errors.New("session id is required")
	}
	return s.Repo.GetByID(ctx, sessionID)
}
