package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// SessionRepository stores tutoring sessions with the message log as a JSON column
type SessionRepository struct {
	db *sql.DB
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	query := `
	INSERT INTO sessions (id, subject, start_time, end_time, interactions, status, messages_json, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		session.ID, session.Subject, session.StartTime.UnixNano(), nullableTime(session.EndTime),
		session.Interactions, string(session.Status), string(messages), session.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	query := `
		SELECT id, subject, start_time, end_time, interactions, status, messages_json, updated_at
		FROM sessions WHERE id = ?`

	var session entities.Session
	var start, updated int64
	var end sql.NullInt64
	var status, messages string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.Subject, &start, &end,
		&session.Interactions, &status, &messages, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repositories.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.StartTime = time.Unix(0, start).UTC()
	session.UpdatedAt = time.Unix(0, updated).UTC()
	session.EndTime = timeFromNull(end)
	session.Status = entities.SessionStatus(status)
	if err := json.Unmarshal([]byte(messages), &session.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return &session, nil
}

// Update implements repositories.SessionRepository
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	query := `
	UPDATE sessions SET subject = ?, end_time = ?, interactions = ?, status = ?, messages_json = ?, updated_at = ?
	WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		session.Subject, nullableTime(session.EndTime), session.Interactions,
		string(session.Status), string(messages), session.UpdatedAt.UnixNano(), session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repositories.ErrSessionNotFound
	}
	return nil
}

// EndExpired implements repositories.SessionRepository
func (r *SessionRepository) EndExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UnixNano()
	query := `
	UPDATE sessions SET status = ?, end_time = ?, updated_at = ?
	WHERE status = ? AND start_time < ?`
	result, err := r.db.ExecContext(ctx, query,
		string(entities.SessionStatusEnded), now, now,
		string(entities.SessionStatusActive), cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("end expired sessions: %w", err)
	}
	return result.RowsAffected()
}
