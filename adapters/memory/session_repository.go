package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// SessionRepository keeps tutoring sessions in process memory
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]entities.Session
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates an empty in-memory session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]entities.Session)}
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.ID]; exists {
		return errors.New("session with this id already exists")
	}
	r.sessions[session.ID] = session.Snapshot()
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	cp := session.Snapshot()
	return &cp, nil
}

// Update implements repositories.SessionRepository
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return repositories.ErrSessionNotFound
	}
	r.sessions[session.ID] = session.Snapshot()
	return nil
}

// EndExpired implements repositories.SessionRepository
func (r *SessionRepository) EndExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ended int64
	for id, session := range r.sessions {
		if session.IsActive() && session.StartTime.Before(cutoff) {
			session.End()
			r.sessions[id] = session
			ended++
		}
	}
	return ended, nil
}
