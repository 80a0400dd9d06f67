package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// SubmissionRepository keeps form submissions in process memory
type SubmissionRepository struct {
	mu          sync.RWMutex
	submissions map[string]entities.Submission
	order       []string
}

var _ repositories.SubmissionRepository = (*SubmissionRepository)(nil)

// NewSubmissionRepository creates an empty in-memory submission repository
func NewSubmissionRepository() *SubmissionRepository {
	return &SubmissionRepository{submissions: make(map[string]entities.Submission)}
}

// Create implements repositories.SubmissionRepository
func (r *SubmissionRepository) Create(ctx context.Context, submission *entities.Submission) error {
	if submission == nil {
		return errors.New("submission cannot be nil")
	}
	if err := submission.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.submissions[submission.ID]; exists {
		return repositories.ErrDuplicateSubmission
	}
	if submission.Kind == entities.SubmissionKindWaitlist {
		for _, existing := range r.submissions {
			if existing.Kind == entities.SubmissionKindWaitlist && existing.Email == submission.Email {
				return repositories.ErrDuplicateSubmission
			}
		}
	}
	r.submissions[submission.ID] = *submission
	r.order = append(r.order, submission.ID)
	return nil
}

// GetByID implements repositories.SubmissionRepository
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*entities.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	submission, ok := r.submissions[id]
	if !ok {
		return nil, repositories.ErrSubmissionNotFound
	}
	return &submission, nil
}

// List implements repositories.SubmissionRepository. Newest first.
func (r *SubmissionRepository) List(ctx context.Context, filter repositories.SubmissionFilter) ([]*entities.Submission, error) {
	r.mu.RLock()
	result := make([]*entities.Submission, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		s := r.submissions[r.order[i]]
		if filter.Kind != nil && s.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		if filter.Email != nil && s.Email != *filter.Email {
			continue
		}
		submission := s
		result = append(result, &submission)
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Update implements repositories.SubmissionRepository
func (r *SubmissionRepository) Update(ctx context.Context, update repositories.SubmissionUpdate) (*entities.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	submission, ok := r.submissions[update.ID]
	if !ok {
		return nil, repositories.ErrSubmissionNotFound
	}
	if update.Status != nil {
		submission.Status = *update.Status
	}
	if update.Notes != nil {
		submission.Notes = *update.Notes
	}
	submission.UpdatedAt = time.Now().UTC()
	r.submissions[update.ID] = submission
	return &submission, nil
}
