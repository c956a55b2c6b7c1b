package queue

import (
	"github.com/maheshrc27/post-dispatch/internal/repository"
	"github.com/maheshrc27/post-dispatch/internal/service"
)

type Queue struct {
	pr repository.PostRepository
	d  service.DispatcherService
}

func NewQueue(pr repository.PostRepository, d service.DispatcherService) *Queue {
	return &Queue{pr: pr, d: d}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	AccountID string `json:"account_id"`
	PostID    string `json:"post_id"`
}
