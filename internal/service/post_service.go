package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository"
)

var ErrPostNotOwned = errors.New("post belongs to another account")

type PostService interface {
	PostInfo(ctx context.Context, postID, accountID string) (*models.Post, error)
	History(ctx context.Context, postID, accountID string) ([]*models.PostingHistory, error)
	Remove(ctx context.Context, postID, accountID string) error
}

type postService struct {
	pr repository.PostRepository
	ph repository.PostingHistoryRepository
}

func NewPostService(pr repository.PostRepository, ph repository.PostingHistoryRepository) PostService {
	return &postService{pr: pr, ph: ph}
}

func (s *postService) PostInfo(ctx context.Context, postID, accountID string) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AccountID != accountID {
		slog.Info(ErrPostNotOwned.Error(), "post_id", postID)
		return nil, ErrPostNotOwned
	}
	return post, nil
}

func (s *postService) History(ctx context.Context, postID, accountID string) ([]*models.PostingHistory, error) {
	if _, err := s.PostInfo(ctx, postID, accountID); err != nil {
		return nil, err
	}
	return s.ph.ListByPostID(ctx, postID)
}

// Remove refuses posts that are mid-publish.
func (s *postService) Remove(ctx context.Context, postID, accountID string) error {
	post, err := s.PostInfo(ctx, postID, accountID)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusPublishing {
		return errors.New("post is being published")
	}
	return s.pr.Remove(ctx, postID)
}
