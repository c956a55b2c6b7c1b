package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/maheshrc27/post-dispatch/internal/models"
)

// ConnectionRepository is read-only: connections are managed outside the publishing pipeline.
type ConnectionRepository interface {
	GetByAccountID(ctx context.Context, accountID string) (*models.Connection, error)
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

// GetByAccountID returns nil without error when the account has no connection rows.
func (r *connectionRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Connection, error) {
	query := `
		SELECT platform, webhook_url, page_id, api_key, api_secret,
			access_token, access_token_secret, created_at, updated_at
		FROM connections
		WHERE account_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	conn := &models.Connection{
		AccountID: accountID,
		Platforms: map[string]models.PlatformConnection{},
	}
	for rows.Next() {
		var pc models.PlatformConnection
		var webhookURL, pageID, apiKey, apiSecret, accessToken, accessTokenSecret sql.NullString
		err := rows.Scan(&pc.Platform, &webhookURL, &pageID, &apiKey, &apiSecret,
			&accessToken, &accessTokenSecret, &pc.CreatedAt, &pc.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pc.WebhookURL = webhookURL.String
		pc.PageID = pageID.String
		pc.APIKey = apiKey.String
		pc.APISecret = apiSecret.String
		pc.AccessToken = accessToken.String
		pc.AccessTokenSecret = accessTokenSecret.String
		conn.Platforms[strings.ToLower(pc.Platform)] = pc
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if len(conn.Platforms) == 0 {
		return nil, nil
	}
	return conn, nil
}
