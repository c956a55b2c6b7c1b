package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository/repotest"
	"github.com/maheshrc27/post-dispatch/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	calls  []string
	result *models.DispatchResult
	err    error
}

func (d *stubDispatcher) PublishToAllPlatforms(_ context.Context, accountID string, post *models.Post) (*models.DispatchResult, error) {
	d.calls = append(d.calls, post.ID)
	return d.result, d.err
}

func (d *stubDispatcher) PublishPlatforms(context.Context, *models.Connection, *models.Post, []string) *models.DispatchResult {
	return nil
}

func publishTask(t *testing.T, accountID, postID string) *asynq.Task {
	payload, err := json.Marshal(PublishPostPayload{AccountID: accountID, PostID: postID})
	require.NoError(t, err)
	return asynq.NewTask(TaskTypePublishPost, payload)
}

func queuedPost(status string) *models.Post {
	return &models.Post{
		ID:        "p1",
		AccountID: "acct-1",
		Platforms: []string{"facebook"},
		Status:    status,
		Image:     models.PostImage{Template: "https://cdn.example.com/a.png"},
		Text:      models.PostText{Post: "hello"},
	}
}

func TestHandlePublishPostTaskDispatches(t *testing.T) {
	d := &stubDispatcher{result: &models.DispatchResult{
		Success: false,
		Results: []models.PublishResult{},
		Errors:  []models.PlatformError{{Platform: "facebook", Error: "no webhook/credentials"}},
	}}
	q := NewQueue(repotest.NewPostStore(queuedPost(models.PostStatusScheduled)), d)

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, "acct-1", "p1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, d.calls)
}

func TestHandlePublishPostTaskSkipsRetry(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		postID    string
		dispErr   error
	}{
		{"unknown post", "acct-1", "missing", nil},
		{"foreign account", "acct-2", "p1", nil},
		{"not publishable", "acct-1", "p1", service.ErrPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{err: tt.dispErr}
			q := NewQueue(repotest.NewPostStore(queuedPost(models.PostStatusScheduled)), d)

			err := q.HandlePublishPostTask(context.Background(), publishTask(t, tt.accountID, tt.postID))
			assert.ErrorIs(t, err, asynq.SkipRetry)
		})
	}
}

func TestHandlePublishPostTaskRetriesTransientErrors(t *testing.T) {
	d := &stubDispatcher{err: errors.New("connection store unavailable")}
	q := NewQueue(repotest.NewPostStore(queuedPost(models.PostStatusScheduled)), d)

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, "acct-1", "p1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePublishPostTaskIgnoresHandledPosts(t *testing.T) {
	for _, status := range []string{models.PostStatusPublished, models.PostStatusPublishing} {
		d := &stubDispatcher{}
		q := NewQueue(repotest.NewPostStore(queuedPost(status)), d)

		require.NoError(t, q.HandlePublishPostTask(context.Background(), publishTask(t, "acct-1", "p1")))
		assert.Empty(t, d.calls, status)
	}
}

func TestHandlePublishPostTaskLostClaimIsNotRetried(t *testing.T) {
	d := &stubDispatcher{err: service.ErrPostBusy}
	q := NewQueue(repotest.NewPostStore(queuedPost(models.PostStatusScheduled)), d)

	require.NoError(t, q.HandlePublishPostTask(context.Background(), publishTask(t, "acct-1", "p1")))
	assert.Equal(t, []string{"p1"}, d.calls)
}

func TestHandlePublishPostTaskBadPayload(t *testing.T) {
	q := NewQueue(repotest.NewPostStore(), &stubDispatcher{})
	err := q.HandlePublishPostTask(context.Background(), asynq.NewTask(TaskTypePublishPost, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
