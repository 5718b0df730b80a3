package sessions

import (
	"context"
	"database/sql"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Touch(ctx context.Context, session Session) error {
	const query = `
INSERT INTO sessions (session_id, ip_address, user_agent, total_analyses, created_at, last_activity)
VALUES ($1, $2, $3, 1, now(), now())
ON CONFLICT (session_id) DO UPDATE SET
  ip_address = EXCLUDED.ip_address,
  user_agent = EXCLUDED.user_agent,
  total_analyses = sessions.total_analyses + 1,
  last_activity = now()`
	_, err := r.DB.ExecContext(ctx, query,
		session.SessionID,
		session.IPAddress,
		session.UserAgent,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, sessionID string) (Session, error) {
	const query = `
SELECT session_id, ip_address, user_agent, total_analyses, created_at, last_activity
FROM sessions
WHERE session_id = $1
LIMIT 1`
	var s Session
	err := r.DB.QueryRowContext(ctx, query, sessionID).Scan(
		&s.SessionID,
		&s.IPAddress,
		&s.UserAgent,
		&s.TotalAnalyses,
		&s.CreatedAt,
		&s.LastActivity,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

var _ Repo = (*PGRepo)(nil)
