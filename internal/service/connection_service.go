package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository"
	"github.com/maheshrc27/post-dispatch/pkg/utils"
)

var ErrMissingCredentials = errors.New("missing credentials")

type ConnectionService interface {
	GetConnection(ctx context.Context, accountID string) (*models.Connection, error)
	TwitterCredentials(pc models.PlatformConnection) (utils.OAuth1Credentials, error)
}

type connectionService struct {
	secretKey string
	cr        repository.ConnectionRepository
}

func NewConnectionService(cfg config.Config, cr repository.ConnectionRepository) ConnectionService {
	return &connectionService{secretKey: cfg.SecretKey, cr: cr}
}

// GetConnection returns nil, nil when the account has no connection record.
func (s *connectionService) GetConnection(ctx context.Context, accountID string) (*models.Connection, error) {
	conn, err := s.cr.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	return conn, nil
}

// TwitterCredentials decrypts the stored OAuth 1.0a values. Without a secret key they are
// taken as stored.
func (s *connectionService) TwitterCredentials(pc models.PlatformConnection) (utils.OAuth1Credentials, error) {
	fields := []string{pc.APIKey, pc.APISecret, pc.AccessToken, pc.AccessTokenSecret}
	for i, v := range fields {
		if v == "" {
			return utils.OAuth1Credentials{}, ErrMissingCredentials
		}
		if s.secretKey == "" {
			continue
		}
		plain, err := utils.Decrypt(v, []byte(s.secretKey))
		if err != nil {
			return utils.OAuth1Credentials{}, fmt.Errorf("decrypt credentials: %w", err)
		}
		fields[i] = plain
	}

	return utils.OAuth1Credentials{
		ConsumerKey:    fields[0],
		ConsumerSecret: fields[1],
		Token:          fields[2],
		TokenSecret:    fields[3],
	}, nil
}

// IsConnected reports whether conn holds a complete sub-record for platform: webhook URL and
// page id for relay platforms, all four OAuth values for the native one.
func IsConnected(conn *models.Connection, platform string) bool {
	pc, ok := conn.Lookup(platform)
	if !ok {
		return false
	}
	if models.IsNativePlatform(platform) {
		return pc.APIKey != "" && pc.APISecret != "" && pc.AccessToken != "" && pc.AccessTokenSecret != ""
	}
	return pc.WebhookURL != "" && pc.PageID != ""
}

func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
