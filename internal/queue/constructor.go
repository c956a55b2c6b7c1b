package queue

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

var ErrAlreadyQueued = errors.New("post is already queued for publishing")

// EnqueuePublish queues an on-demand publish. One task per post may be pending at a time.
func EnqueuePublish(asynqClient *asynq.Client, payload PublishPostPayload, delay time.Duration) (string, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	info, err := asynqClient.Enqueue(task,
		asynq.TaskID("publish-"+payload.PostID),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrAlreadyQueued
	}
	if err != nil {
		return "", err
	}

	slog.Info("publish task queued", "task_id", info.ID, "post_id", payload.PostID)
	return info.ID, nil
}
