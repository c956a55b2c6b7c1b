package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository"
)

var (
	ErrPrecondition = errors.New("post cannot be published")
	ErrPostBusy     = errors.New("post is already published or being published")
)

type DispatcherService interface {
	// PublishToAllPlatforms checks the post, claims it, publishes it to every platform not yet
	// delivered and marks it published only when all of them succeed. Otherwise the post goes
	// back to the status it had.
	PublishToAllPlatforms(ctx context.Context, accountID string, post *models.Post) (*models.DispatchResult, error)
	// PublishPlatforms publishes to the given platforms with an already resolved connection.
	// It performs no checks and persists nothing about the post as a whole.
	PublishPlatforms(ctx context.Context, conn *models.Connection, post *models.Post, platforms []string) *models.DispatchResult
}

type dispatcherService struct {
	connections ConnectionService
	publisher   PublisherService
	posts       repository.PostRepository
	concurrency int
	now         func() time.Time
}

func NewDispatcherService(
	connections ConnectionService,
	publisher PublisherService,
	posts repository.PostRepository,
	concurrency int) DispatcherService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &dispatcherService{
		connections: connections,
		publisher:   publisher,
		posts:       posts,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// CheckPublishable returns an ErrPrecondition error naming the first missing field.
func CheckPublishable(post *models.Post) error {
	switch {
	case post == nil:
		return fmt.Errorf("%w: no post", ErrPrecondition)
	case strings.TrimSpace(post.Image.Template) == "":
		return fmt.Errorf("%w: image template is required", ErrPrecondition)
	case strings.TrimSpace(post.Text.Post) == "":
		return fmt.Errorf("%w: post text is required", ErrPrecondition)
	case len(post.Platforms) == 0:
		return fmt.Errorf("%w: at least one platform is required", ErrPrecondition)
	}
	return nil
}

// CheckClaimable returns an ErrPostBusy error when the post is published or held by a publish run.
func CheckClaimable(post *models.Post) error {
	switch post.Status {
	case models.PostStatusPublished, models.PostStatusPublishing:
		return fmt.Errorf("%w: status %s", ErrPostBusy, post.Status)
	}
	return nil
}

func (s *dispatcherService) PublishToAllPlatforms(ctx context.Context, accountID string, post *models.Post) (*models.DispatchResult, error) {
	if err := CheckPublishable(post); err != nil {
		return nil, err
	}

	if err := CheckClaimable(post); err != nil {
		return nil, err
	}

	conn, err := s.connections.GetConnection(ctx, accountID)
	if err != nil {
		return nil, err
	}

	prior := post.Status
	if post.ID != "" {
		claimed, err := s.posts.ClaimFrom(ctx, post.ID, prior, s.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("claim post: %w", err)
		}
		if !claimed {
			return nil, fmt.Errorf("%w: claimed by another run", ErrPostBusy)
		}
	}

	var pending []string
	for _, platform := range post.Platforms {
		if !post.HasPublished(platform) {
			pending = append(pending, platform)
		}
	}

	result := s.PublishPlatforms(ctx, conn, post, pending)
	if post.ID == "" {
		return result, nil
	}
	if !result.Success {
		err := s.posts.Update(ctx, post.ID, models.PostPatch{Status: &prior, ClearClaim: true})
		if err != nil {
			return result, fmt.Errorf("release post: %w", err)
		}
		return result, nil
	}

	status := models.PostStatusPublished
	now := s.now().UTC()
	err = s.posts.Update(ctx, post.ID, models.PostPatch{
		Status:      &status,
		PublishedAt: &now,
		ClearClaim:  true,
		ClearNextAt: true,
	})
	if err != nil {
		return result, fmt.Errorf("mark post published: %w", err)
	}
	post.Status = status
	post.PublishedAt = &now
	return result, nil
}

func (s *dispatcherService) PublishPlatforms(ctx context.Context, conn *models.Connection, post *models.Post, platforms []string) *models.DispatchResult {
	type outcome struct {
		result models.PublishResult
		err    error
	}
	outcomes := make([]outcome, len(platforms))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for i, platform := range platforms {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, platform string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			res, err := s.publisher.PublishWithConnection(ctx, conn, platform, post)
			outcomes[i] = outcome{result: res, err: err}
		}(i, platform)
	}
	wg.Wait()

	dispatch := &models.DispatchResult{
		Results: []models.PublishResult{},
		Errors:  []models.PlatformError{},
	}
	for i, o := range outcomes {
		platform := normalizePlatform(platforms[i])
		switch {
		case o.err != nil:
			dispatch.Errors = append(dispatch.Errors, models.PlatformError{Platform: platform, Error: o.err.Error()})
		case !o.result.Success:
			msg := o.result.Response
			if o.result.Error != "" {
				msg = o.result.Error
			}
			dispatch.Errors = append(dispatch.Errors, models.PlatformError{Platform: platform, Error: msg})
		default:
			dispatch.Results = append(dispatch.Results, o.result)
		}
	}
	dispatch.Success = len(dispatch.Errors) == 0

	slog.Info("post dispatched",
		"post_id", post.ID,
		"succeeded", len(dispatch.Results),
		"failed", len(dispatch.Errors))
	return dispatch
}
