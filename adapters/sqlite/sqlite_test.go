package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "tutorline.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Sessions()

	session := entities.NewSession("english")
	session.AppendMessage(entities.MessageRoleAssistant, "Hello! Let's practice English.")
	require.NoError(t, repo.Create(ctx, session))

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "english", got.Subject)
	assert.Equal(t, entities.SessionStatusActive, got.Status)
	assert.Nil(t, got.EndTime)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, entities.MessageRoleAssistant, got.Messages[0].Role)
	assert.True(t, session.StartTime.Equal(got.StartTime))

	session.AppendMessage(entities.MessageRoleUser, "How do I use the past perfect?")
	session.RecordInteraction()
	session.End()
	require.NoError(t, repo.Update(ctx, session))

	got, err = repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Interactions)
	assert.Equal(t, entities.SessionStatusEnded, got.Status)
	require.NotNil(t, got.EndTime)
	assert.Len(t, got.Messages, 2)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrSessionNotFound)
	assert.ErrorIs(t, repo.Update(ctx, entities.NewSession("math")), repositories.ErrSessionNotFound)
}

func TestSessionRepository_EndExpired(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Sessions()

	old := entities.NewSession("history")
	old.StartTime = time.Now().Add(-time.Hour)
	fresh := entities.NewSession("science")
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	n, err := repo.EndExpired(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := repo.GetByID(ctx, old.ID)
	assert.Equal(t, entities.SessionStatusEnded, got.Status)
	assert.NotNil(t, got.EndTime)

	n, err = repo.EndExpired(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "already ended sessions are not counted twice")
}

func TestSubmissionRepository(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Submissions()

	waitlist := entities.NewSubmission(entities.SubmissionKindWaitlist)
	waitlist.Email = "ada@example.com"
	waitlist.CreatedAt = time.Now().Add(-time.Minute).UTC()
	require.NoError(t, repo.Create(ctx, waitlist))

	dup := entities.NewSubmission(entities.SubmissionKindWaitlist)
	dup.Email = "ada@example.com"
	assert.ErrorIs(t, repo.Create(ctx, dup), repositories.ErrDuplicateSubmission)

	preferred := time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC)
	demo := entities.NewSubmission(entities.SubmissionKindDemo)
	demo.Name = "Grace Hopper"
	demo.Email = "ada@example.com"
	demo.Organization = "Navy School"
	demo.PreferredTime = &preferred
	require.NoError(t, repo.Create(ctx, demo))

	got, err := repo.GetByID(ctx, demo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Navy School", got.Organization)
	require.NotNil(t, got.PreferredTime)
	assert.True(t, preferred.Equal(*got.PreferredTime))

	all, err := repo.List(ctx, repositories.SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, demo.ID, all[0].ID)

	kind := entities.SubmissionKindWaitlist
	email := "ada@example.com"
	filtered, err := repo.List(ctx, repositories.SubmissionFilter{Kind: &kind, Email: &email})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, waitlist.ID, filtered[0].ID)

	limited, err := repo.List(ctx, repositories.SubmissionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	status := entities.StatusScheduled
	notes := "Tuesday 3pm"
	updated, err := repo.Update(ctx, repositories.SubmissionUpdate{ID: demo.ID, Status: &status, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScheduled, updated.Status)
	assert.Equal(t, "Tuesday 3pm", updated.Notes)
	assert.Equal(t, "Grace Hopper", updated.Name)

	_, err = repo.Update(ctx, repositories.SubmissionUpdate{ID: "nope", Notes: &notes})
	assert.ErrorIs(t, err, repositories.ErrSubmissionNotFound)
	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, repositories.ErrSubmissionNotFound)
}
