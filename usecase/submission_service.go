package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var (
	// ErrInvalidStatus is returned when a status is outside the kind's workflow
	ErrInvalidStatus = errors.New("invalid status for submission kind")
	// ErrValidation wraps user input problems
	ErrValidation = errors.New("validation failed")
)

// SubmissionService runs the public forms and the admin back-office
type SubmissionService struct {
	repo   repositories.SubmissionRepository
	logger *zap.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(repo repositories.SubmissionRepository, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{repo: repo, logger: logger}
}

// Submit stores a new form submission. ID, status and timestamps are assigned here.
func (s *SubmissionService) Submit(ctx context.Context, input entities.Submission) (*entities.Submission, error) {
	submission := entities.NewSubmission(input.Kind)
	submission.Name = input.Name
	submission.Email = input.Email
	submission.Phone = input.Phone
	submission.Organization = input.Organization
	submission.Role = input.Role
	submission.Message = input.Message
	submission.PreferredTime = input.PreferredTime
	submission.Normalize()

	if err := submission.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if submission.Kind == entities.SubmissionKindWaitlist {
		email := submission.Email
		existing, err := s.repo.List(ctx, repositories.SubmissionFilter{Kind: &submission.Kind, Email: &email, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, repositories.ErrDuplicateSubmission
		}
	}

	if err := s.repo.Create(ctx, submission); err != nil {
		return nil, err
	}

	s.logger.Info("Submission received",
		zap.String("id", submission.ID),
		zap.String("kind", string(submission.Kind)))
	return submission, nil
}

// Get returns one submission
func (s *SubmissionService) Get(ctx context.Context, id string) (*entities.Submission, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns submissions newest first. The limit is clamped to MaxListLimit.
func (s *SubmissionService) List(ctx context.Context, filter repositories.SubmissionFilter) ([]*entities.Submission, error) {
	if filter.Kind != nil && !entities.IsValidKind(*filter.Kind) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, *filter.Kind)
	}
	if filter.Kind != nil && filter.Status != nil && !filter.Kind.AllowsStatus(*filter.Status) {
		return nil, ErrInvalidStatus
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	return s.repo.List(ctx, filter)
}

// Update changes status and/or notes. The status must belong to the
// submission's own workflow.
func (s *SubmissionService) Update(ctx context.Context, update repositories.SubmissionUpdate) (*entities.Submission, error) {
	if update.Status == nil && update.Notes == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	if update.Status != nil {
		current, err := s.repo.GetByID(ctx, update.ID)
		if err != nil {
			return nil, err
		}
		if !current.Kind.AllowsStatus(*update.Status) {
			return nil, fmt.Errorf("%w: %q not in %v", ErrInvalidStatus, *update.Status, current.Kind.Statuses())
		}
	}

	updated, err := s.repo.Update(ctx, update)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Submission updated",
		zap.String("id", updated.ID),
		zap.String("status", string(updated.Status)))
	return updated, nil
}
