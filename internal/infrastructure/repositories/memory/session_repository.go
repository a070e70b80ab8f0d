package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

// SessionRepository keeps live sessions of this process.
type SessionRepository struct {
	sessions map[domain.SessionID]ports.SessionHandle
	mu       sync.RWMutex
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[domain.SessionID]ports.SessionHandle),
	}
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Add(ctx context.Context, session ports.SessionHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID()]; exists {
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, session.ID())
	}

	r.sessions[session.ID()] = session
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id domain.SessionID) (ports.SessionHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	return session, nil
}

func (r *SessionRepository) Remove(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return domain.ErrSessionNotFound
	}

	delete(r.sessions, id)
	return nil
}

// List returns sessions ordered by creation time.
func (r *SessionRepository) List(ctx context.Context) ([]ports.SessionHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]ports.SessionHandle, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i].Info(), sessions[j].Info()
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	return sessions, nil
}
