package ports

import (
	"context"

	"beamline/internal/core/domain"
)

// SessionHandle is the view of a live session exposed to repositories and handlers.
type SessionHandle interface {
	ID() domain.SessionID
	Info() domain.SessionInfo
	Close() error
}

type SessionRepository interface {
	Add(ctx context.Context, session SessionHandle) error
	GetByID(ctx context.Context, id domain.SessionID) (SessionHandle, error)
	Remove(ctx context.Context, id domain.SessionID) error
	List(ctx context.Context) ([]SessionHandle, error)
}
