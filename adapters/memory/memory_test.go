package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	session := entities.NewSession("math")
	session.AppendMessage(entities.MessageRoleAssistant, "Welcome to math!")
	require.NoError(t, repo.Create(ctx, session))
	require.Error(t, repo.Create(ctx, session), "duplicate id")

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "math", got.Subject)
	require.Len(t, got.Messages, 1)

	// stored copy must not alias the caller's slice
	session.AppendMessage(entities.MessageRoleUser, "hi")
	got, _ = repo.GetByID(ctx, session.ID)
	assert.Len(t, got.Messages, 1)

	session.RecordInteraction()
	require.NoError(t, repo.Update(ctx, session))
	got, _ = repo.GetByID(ctx, session.ID)
	assert.Equal(t, 1, got.Interactions)
	assert.Len(t, got.Messages, 2)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrSessionNotFound)
	assert.ErrorIs(t, repo.Update(ctx, entities.NewSession("math")), repositories.ErrSessionNotFound)
}

func TestSessionRepository_EndExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	old := entities.NewSession("history")
	old.StartTime = time.Now().Add(-2 * time.Hour)
	fresh := entities.NewSession("science")
	ended := entities.NewSession("coding")
	ended.StartTime = time.Now().Add(-2 * time.Hour)
	ended.End()
	for _, s := range []*entities.Session{old, fresh, ended} {
		require.NoError(t, repo.Create(ctx, s))
	}

	n, err := repo.EndExpired(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := repo.GetByID(ctx, old.ID)
	assert.Equal(t, entities.SessionStatusEnded, got.Status)
	assert.NotNil(t, got.EndTime)
	got, _ = repo.GetByID(ctx, fresh.ID)
	assert.True(t, got.IsActive())
}

func newWaitlist(email string) *entities.Submission {
	s := entities.NewSubmission(entities.SubmissionKindWaitlist)
	s.Email = email
	return s
}

func TestSubmissionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository()

	first := newWaitlist("ada@example.com")
	first.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, first))
	assert.ErrorIs(t, repo.Create(ctx, newWaitlist("ada@example.com")), repositories.ErrDuplicateSubmission)

	contact := entities.NewSubmission(entities.SubmissionKindContact)
	contact.Name = "Grace"
	contact.Email = "ada@example.com"
	contact.Message = "Do you support Python?"
	require.NoError(t, repo.Create(ctx, contact), "same email on another kind is fine")

	all, err := repo.List(ctx, repositories.SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, contact.ID, all[0].ID, "newest first")

	kind := entities.SubmissionKindWaitlist
	onlyWaitlist, _ := repo.List(ctx, repositories.SubmissionFilter{Kind: &kind})
	require.Len(t, onlyWaitlist, 1)

	limited, _ := repo.List(ctx, repositories.SubmissionFilter{Limit: 1})
	assert.Len(t, limited, 1)

	status := entities.StatusInvited
	notes := "invite sent"
	updated, err := repo.Update(ctx, repositories.SubmissionUpdate{ID: first.ID, Status: &status, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusInvited, updated.Status)
	assert.Equal(t, "invite sent", updated.Notes)
	assert.False(t, updated.UpdatedAt.Before(first.UpdatedAt))

	invited, _ := repo.List(ctx, repositories.SubmissionFilter{Status: &status})
	assert.Len(t, invited, 1)

	_, err = repo.Update(ctx, repositories.SubmissionUpdate{ID: "nope"})
	assert.ErrorIs(t, err, repositories.ErrSubmissionNotFound)
	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, repositories.ErrSubmissionNotFound)
}
