package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// newTestClient connects to a throwaway database; skipped if MONGODB_URI is not set
func newTestClient(t *testing.T) *Client {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, uri, "tutorline_test_"+uuid.NewString()[:8], zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Database.Drop(ctx)
		_ = client.Close(ctx)
	})
	return client
}

func TestSessionRepository_Integration(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	repo, err := NewSessionRepository(ctx, client.Database, zaptest.NewLogger(t))
	require.NoError(t, err)

	session := entities.NewSession("science")
	session.AppendMessage(entities.MessageRoleAssistant, "Welcome to science!")
	require.NoError(t, repo.Create(ctx, session))

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "science", got.Subject)
	assert.Len(t, got.Messages, 1)

	session.SwitchSubject("math")
	session.AppendMessage(entities.MessageRoleAssistant, "Welcome to math!")
	require.NoError(t, repo.Update(ctx, session))
	got, _ = repo.GetByID(ctx, session.ID)
	assert.Equal(t, "math", got.Subject)

	old := entities.NewSession("history")
	old.StartTime = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, old))
	n, err := repo.EndExpired(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrSessionNotFound)
}

func TestSubmissionRepository_Integration(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	repo, err := NewSubmissionRepository(ctx, client.Database, zaptest.NewLogger(t))
	require.NoError(t, err)

	waitlist := entities.NewSubmission(entities.SubmissionKindWaitlist)
	waitlist.Email = "ada@example.com"
	require.NoError(t, repo.Create(ctx, waitlist))

	dup := entities.NewSubmission(entities.SubmissionKindWaitlist)
	dup.Email = "ada@example.com"
	assert.ErrorIs(t, repo.Create(ctx, dup), repositories.ErrDuplicateSubmission)

	status := entities.StatusInvited
	updated, err := repo.Update(ctx, repositories.SubmissionUpdate{ID: waitlist.ID, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusInvited, updated.Status)

	list, err := repo.List(ctx, repositories.SubmissionFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = repo.Update(ctx, repositories.SubmissionUpdate{ID: "missing"})
	assert.ErrorIs(t, err, repositories.ErrSubmissionNotFound)
}
