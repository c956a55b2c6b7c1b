package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/queue"
	"github.com/maheshrc27/post-dispatch/internal/repository/repotest"
	"github.com/maheshrc27/post-dispatch/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	result *models.DispatchResult
	err    error
	calls  int
}

func (d *stubDispatcher) PublishToAllPlatforms(_ context.Context, _ string, post *models.Post) (*models.DispatchResult, error) {
	d.calls++
	if d.err != nil {
		return d.result, d.err
	}
	if err := service.CheckPublishable(post); err != nil {
		return nil, err
	}
	return d.result, nil
}

func (d *stubDispatcher) PublishPlatforms(context.Context, *models.Connection, *models.Post, []string) *models.DispatchResult {
	return nil
}

type handlerFixture struct {
	app        *fiber.App
	dispatcher *stubDispatcher
	queued     []queue.PublishPostPayload
	enqueueErr error
}

func newHandlerFixture(posts ...*models.Post) *handlerFixture {
	f := &handlerFixture{dispatcher: &stubDispatcher{result: &models.DispatchResult{
		Success: false,
		Results: []models.PublishResult{{Platform: "facebook", Success: true, Response: "ok"}},
		Errors:  []models.PlatformError{{Platform: "instagram", Error: "no webhook/credentials"}},
	}}}

	h := NewPostHandler(service.NewPostService(repotest.NewPostStore(posts...), repotest.NewHistoryStore()), f.dispatcher, nil)
	h.enqueue = func(p queue.PublishPostPayload) (string, error) {
		if f.enqueueErr != nil {
			return "", f.enqueueErr
		}
		f.queued = append(f.queued, p)
		return "publish-" + p.PostID, nil
	}

	f.app = fiber.New()
	f.app.Use(func(c *fiber.Ctx) error {
		c.Locals("account_id", "acct-1")
		return c.Next()
	})
	f.app.Get("/api/posts/:id", h.PostInfo)
	f.app.Get("/api/posts/:id/history", h.History)
	f.app.Post("/api/posts/:id/publish", h.PublishNow)
	f.app.Delete("/api/posts/:id", h.RemovePost)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, target string) (int, map[string]any) {
	resp, err := f.app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func ownedPost(id, accountID string) *models.Post {
	return &models.Post{
		ID:        id,
		AccountID: accountID,
		Platforms: []string{"facebook", "instagram"},
		Status:    models.PostStatusScheduled,
		Image:     models.PostImage{Template: "https://cdn.example.com/a.png"},
		Text:      models.PostText{Post: "hello"},
	}
}

func TestPublishNowReturnsPartialReport(t *testing.T) {
	f := newHandlerFixture(ownedPost("p1", "acct-1"))

	status, body := f.do(t, http.MethodPost, "/api/posts/p1/publish")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Len(t, body["results"], 1)
	assert.Len(t, body["errors"], 1)
	assert.Equal(t, 1, f.dispatcher.calls)
}

func TestPublishNowAsyncQueues(t *testing.T) {
	f := newHandlerFixture(ownedPost("p1", "acct-1"))

	status, body := f.do(t, http.MethodPost, "/api/posts/p1/publish?async=true")

	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "publish-p1", body["task_id"])
	assert.Equal(t, []queue.PublishPostPayload{{AccountID: "acct-1", PostID: "p1"}}, f.queued)
	assert.Equal(t, 0, f.dispatcher.calls)
}

func TestPublishNowAsyncAlreadyQueued(t *testing.T) {
	f := newHandlerFixture(ownedPost("p1", "acct-1"))
	f.enqueueErr = queue.ErrAlreadyQueued

	status, _ := f.do(t, http.MethodPost, "/api/posts/p1/publish?async=true")
	assert.Equal(t, http.StatusConflict, status)
}

func TestPublishNowPrecondition(t *testing.T) {
	post := ownedPost("p1", "acct-1")
	post.Text.Post = ""
	f := newHandlerFixture(post)

	status, body := f.do(t, http.MethodPost, "/api/posts/p1/publish")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "post text is required")

	status, _ = f.do(t, http.MethodPost, "/api/posts/p1/publish?async=true")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, f.queued)
}

func TestPublishNowOwnershipAndMissing(t *testing.T) {
	f := newHandlerFixture(ownedPost("p1", "acct-2"))

	status, _ := f.do(t, http.MethodPost, "/api/posts/p1/publish")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodPost, "/api/posts/nope/publish")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 0, f.dispatcher.calls)
}

func TestPublishNowRejectsBusyPosts(t *testing.T) {
	for _, status := range []string{models.PostStatusPublishing, models.PostStatusPublished} {
		t.Run(status, func(t *testing.T) {
			post := ownedPost("p1", "acct-1")
			post.Status = status
			f := newHandlerFixture(post)

			code, body := f.do(t, http.MethodPost, "/api/posts/p1/publish")
			assert.Equal(t, http.StatusConflict, code)
			assert.Contains(t, body["error"], "status "+status)

			code, _ = f.do(t, http.MethodPost, "/api/posts/p1/publish?async=true")
			assert.Equal(t, http.StatusConflict, code)

			assert.Equal(t, 0, f.dispatcher.calls)
			assert.Empty(t, f.queued)
		})
	}
}

func TestPublishNowLostClaimIsConflict(t *testing.T) {
	f := newHandlerFixture(ownedPost("p1", "acct-1"))
	f.dispatcher.result = nil
	f.dispatcher.err = fmt.Errorf("%w: claimed by another run", service.ErrPostBusy)

	status, _ := f.do(t, http.MethodPost, "/api/posts/p1/publish")
	assert.Equal(t, http.StatusConflict, status)
}

func TestPublishNowDispatcherFailure(t *testing.T) {
	f := newHandlerFixture(ownedPost("p1", "acct-1"))
	f.dispatcher.result = nil
	f.dispatcher.err = errors.New("connection store unavailable")

	status, _ := f.do(t, http.MethodPost, "/api/posts/p1/publish")
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestPostInfoHistoryAndRemove(t *testing.T) {
	f := newHandlerFixture(ownedPost("p1", "acct-1"))

	status, body := f.do(t, http.MethodGet, "/api/posts/p1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "p1", body["id"])

	status, body = f.do(t, http.MethodGet, "/api/posts/p1/history")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "history")

	status, _ = f.do(t, http.MethodDelete, "/api/posts/p1")
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%s", "p1"))
	assert.Equal(t, http.StatusNotFound, status)
}
