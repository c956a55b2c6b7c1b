package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/post-dispatch/internal/queue"
	"github.com/maheshrc27/post-dispatch/internal/repository"
	"github.com/maheshrc27/post-dispatch/internal/service"
)

type PostHandler struct {
	s       service.PostService
	d       service.DispatcherService
	enqueue func(queue.PublishPostPayload) (string, error)
}

func NewPostHandler(s service.PostService, d service.DispatcherService, asynqClient *asynq.Client) *PostHandler {
	return &PostHandler{
		s: s,
		d: d,
		enqueue: func(p queue.PublishPostPayload) (string, error) {
			return queue.EnqueuePublish(asynqClient, p, 0)
		},
	}
}

func postError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repository.ErrPostNotFound):
		return errorJSON(c, fiber.StatusNotFound, "post not found")
	case errors.Is(err, service.ErrPostNotOwned):
		return errorJSON(c, fiber.StatusForbidden, err.Error())
	}
	slog.Error(err.Error())
	return errorJSON(c, fiber.StatusInternalServerError, "unable to load post")
}

func (h *PostHandler) PostInfo(c *fiber.Ctx) error {
	post, err := h.s.PostInfo(c.UserContext(), c.Params("id"), GetAccountID(c))
	if err != nil {
		return postError(c, err)
	}
	return c.JSON(post)
}

func (h *PostHandler) History(c *fiber.Ctx) error {
	entries, err := h.s.History(c.UserContext(), c.Params("id"), GetAccountID(c))
	if err != nil {
		return postError(c, err)
	}
	return c.JSON(fiber.Map{"history": entries})
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.s.Remove(c.UserContext(), c.Params("id"), GetAccountID(c)); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) || errors.Is(err, service.ErrPostNotOwned) {
			return postError(c, err)
		}
		return errorJSON(c, fiber.StatusConflict, err.Error())
	}
	return c.JSON(fiber.Map{"message": "Post removed"})
}

// PublishNow publishes a post to all of its platforms. With ?async=true the work is queued
// and the task id returned instead of the report.
func (h *PostHandler) PublishNow(c *fiber.Ctx) error {
	accountID := GetAccountID(c)

	post, err := h.s.PostInfo(c.UserContext(), c.Params("id"), accountID)
	if err != nil {
		return postError(c, err)
	}

	if err := service.CheckClaimable(post); err != nil {
		return errorJSON(c, fiber.StatusConflict, err.Error())
	}

	if c.QueryBool("async", false) {
		if err := service.CheckPublishable(post); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		taskID, err := h.enqueue(queue.PublishPostPayload{AccountID: accountID, PostID: post.ID})
		if errors.Is(err, queue.ErrAlreadyQueued) {
			return errorJSON(c, fiber.StatusConflict, err.Error())
		}
		if err != nil {
			slog.Error(err.Error())
			return errorJSON(c, fiber.StatusInternalServerError, "Error queueing post")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Post queued for publishing",
			"task_id": taskID,
		})
	}

	result, err := h.d.PublishToAllPlatforms(c.UserContext(), accountID, post)
	if errors.Is(err, service.ErrPrecondition) {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if errors.Is(err, service.ErrPostBusy) {
		return errorJSON(c, fiber.StatusConflict, err.Error())
	}
	if err != nil && result == nil {
		slog.Error(err.Error())
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to publish post")
	}
	if err != nil {
		slog.Error(err.Error(), "post_id", post.ID)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}
