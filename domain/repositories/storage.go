package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/tutorline/server/domain/entities"
)

var (
	// ErrSessionNotFound is returned when no session matches the id
	ErrSessionNotFound = errors.New("session not found")
	// ErrSubmissionNotFound is returned when no submission matches the id
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrDuplicateSubmission is returned when a waitlist email is already registered
	ErrDuplicateSubmission = errors.New("submission already exists")
)

// SessionRepository persists tutoring session records
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	// EndExpired marks active sessions started before cutoff as ended
	EndExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubmissionFilter narrows ListSubmissions. Nil fields are ignored.
type SubmissionFilter struct {
	Kind   *entities.SubmissionKind
	Status *entities.SubmissionStatus
	Email  *string
	Limit  int
}

// SubmissionUpdate carries the fields an admin may change
type SubmissionUpdate struct {
	ID     string
	Status *entities.SubmissionStatus
	Notes  *string
}

// SubmissionRepository persists contact, waitlist and demo submissions
type SubmissionRepository interface {
	Create(ctx context.Context, submission *entities.Submission) error
	GetByID(ctx context.Context, id string) (*entities.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]*entities.Submission, error)
	Update(ctx context.Context, update SubmissionUpdate) (*entities.Submission, error)
}
