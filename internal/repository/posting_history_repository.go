package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/post-dispatch/internal/models"
)

type PostingHistoryRepository interface {
	Create(ctx context.Context, ph *models.PostingHistory) (string, error)
	ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (string, error) {
	if ph.ID == "" {
		ph.ID = uuid.NewString()
	}
	if ph.CreatedAt.IsZero() {
		ph.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO posting_history (id, account_id, post_id, platform, success, response, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query, ph.ID, ph.AccountID, ph.PostID, ph.Platform,
		ph.Success, ph.Response, ph.ErrorMessage, ph.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return ph.ID, nil
}

func (r *postingHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	query := `
		SELECT id, account_id, post_id, platform, success, response, error_message, created_at
		FROM posting_history
		WHERE post_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var phs []*models.PostingHistory
	for rows.Next() {
		var ph models.PostingHistory
		err := rows.Scan(&ph.ID, &ph.AccountID, &ph.PostID, &ph.Platform, &ph.Success,
			&ph.Response, &ph.ErrorMessage, &ph.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		phs = append(phs, &ph)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return phs, nil
}
