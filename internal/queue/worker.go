package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository"
	"github.com/maheshrc27/post-dispatch/internal/service"
)

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	_, err := q.PublishPost(ctx, payload)
	return err
}

// PublishPost runs the dispatcher for a queued post. Partial failures are logged, not retried,
// so platforms that already succeeded are not published twice.
func (q *Queue) PublishPost(ctx context.Context, payload PublishPostPayload) (*models.DispatchResult, error) {
	post, err := q.pr.GetByID(ctx, payload.PostID)
	if errors.Is(err, repository.ErrPostNotFound) {
		return nil, fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err != nil {
		return nil, err
	}
	if post.AccountID != payload.AccountID {
		return nil, fmt.Errorf("%w: %v", asynq.SkipRetry, service.ErrPostNotOwned)
	}
	if err := service.CheckClaimable(post); err != nil {
		slog.Info("queued post already handled", "post_id", post.ID, "status", post.Status)
		return nil, nil
	}

	result, err := q.d.PublishToAllPlatforms(ctx, payload.AccountID, post)
	if errors.Is(err, service.ErrPrecondition) {
		return nil, fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if errors.Is(err, service.ErrPostBusy) {
		slog.Info("queued post claimed by another run", "post_id", post.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for _, e := range result.Errors {
		slog.Error("queued publish failed", "post_id", post.ID, "platform", e.Platform, "error", e.Error)
	}
	return result, nil
}
