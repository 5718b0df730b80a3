package sessions

import "context"

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "session not found" }

type Repo interface {
	// Touch upserts the session and increments its analysis counter.
	Touch(ctx context.Context, session Session) error
	GetByID(ctx context.Context, sessionID string) (Session, error)
}
