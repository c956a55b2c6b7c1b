package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/post-dispatch/internal/models"
)

var ErrPostNotFound = errors.New("post not found")

type PostRepository interface {
	GetByID(ctx context.Context, id string) (*models.Post, error)
	FindDue(ctx context.Context, day time.Time, hour string) ([]*models.Post, error)
	FindRetryable(ctx context.Context, now time.Time) ([]*models.Post, error)
	FindStale(ctx context.Context, claimedBefore time.Time) ([]*models.Post, error)
	Claim(ctx context.Context, id string, now, claimedBefore time.Time) (bool, error)
	ClaimFrom(ctx context.Context, id, status string, now time.Time) (bool, error)
	Update(ctx context.Context, id string, patch models.PostPatch) error
	AddPublishedPlatform(ctx context.Context, id, platform string) error
	Remove(ctx context.Context, id string) error
}

const postColumns = `id, account_id, platforms, date_post, time_post, status,
	image_template, image_video, show_video, text_title, text_subtitle, text_post,
	published_at, attempts, next_attempt_at, published_platforms, claimed_at, last_error,
	created_at, updated_at`

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var videoURL, lastError sql.NullString
	err := row.Scan(
		&post.ID, &post.AccountID, pq.Array(&post.Platforms), &post.DatePost, &post.TimePost, &post.Status,
		&post.Image.Template, &videoURL, &post.Image.ShowVideo, &post.Text.Title, &post.Text.Subtitle, &post.Text.Post,
		&post.PublishedAt, &post.Attempts, &post.NextAttemptAt, pq.Array(&post.PublishedPlatforms), &post.ClaimedAt, &lastError,
		&post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	post.Image.Video = videoURL.String
	post.LastError = lastError.String
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// FindDue matches posts whose date and hour equal the given slot exactly.
func (r *postRepository) FindDue(ctx context.Context, day time.Time, hour string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE date_post = $1::date AND time_post = $2 AND status = $3
		ORDER BY created_at`
	return r.list(ctx, query, day.UTC().Format("2006-01-02"), hour, models.PostStatusScheduled)
}

func (r *postRepository) FindRetryable(ctx context.Context, now time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND next_attempt_at IS NOT NULL AND next_attempt_at <= $2
		ORDER BY next_attempt_at`
	return r.list(ctx, query, models.PostStatusScheduled, now)
}

// FindStale returns posts whose publishing lease was taken before claimedBefore and never released.
func (r *postRepository) FindStale(ctx context.Context, claimedBefore time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND claimed_at < $2
		ORDER BY claimed_at`
	return r.list(ctx, query, models.PostStatusPublishing, claimedBefore)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// Claim moves a post from scheduled to publishing. A post stuck in publishing with a lease
// older than claimedBefore can be claimed again. Returns false if another worker holds it.
func (r *postRepository) Claim(ctx context.Context, id string, now, claimedBefore time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $2, claimed_at = $3, updated_at = $3
		WHERE id = $1
			AND (status = $4 OR (status = $2 AND claimed_at < $5))
	`
	result, err := r.db.ExecContext(ctx, query, id, models.PostStatusPublishing, now, models.PostStatusScheduled, claimedBefore)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// ClaimFrom moves a post to publishing only while it is still in the given status.
func (r *postRepository) ClaimFrom(ctx context.Context, id, status string, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $2, claimed_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, id, models.PostStatusPublishing, now, status)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) Update(ctx context.Context, id string, patch models.PostPatch) error {
	sets := []string{}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.PublishedAt != nil {
		add("published_at", *patch.PublishedAt)
	}
	if patch.Attempts != nil {
		add("attempts", *patch.Attempts)
	}
	if patch.NextAttemptAt != nil {
		add("next_attempt_at", *patch.NextAttemptAt)
	} else if patch.ClearNextAt {
		sets = append(sets, "next_attempt_at = NULL")
	}
	if patch.LastError != nil {
		add("last_error", *patch.LastError)
	}
	if patch.ClearClaim {
		sets = append(sets, "claimed_at = NULL")
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now())

	query := `UPDATE posts SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *postRepository) AddPublishedPlatform(ctx context.Context, id, platform string) error {
	query := `
		UPDATE posts
		SET published_platforms = array_append(published_platforms, $2::text),
			updated_at = $3
		WHERE id = $1 AND NOT ($2::text = ANY(published_platforms))
	`
	_, err := r.db.ExecContext(ctx, query, id, strings.ToLower(platform), time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
