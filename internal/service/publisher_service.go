package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository"
	"github.com/maheshrc27/post-dispatch/internal/transfer"
	"github.com/maheshrc27/post-dispatch/pkg/utils"
)

// NativeEnvelopeID replaces the page id in envelopes for the native platform, which has none.
const NativeEnvelopeID = models.PlatformTwitter

const (
	ResponseNotConnected = "no webhook/credentials"
	ResponseNoWebhook    = "no webhook URL found"
)

type PublisherService interface {
	Publish(ctx context.Context, accountID, platform string, post *models.Post) (models.PublishResult, error)
	PublishWithConnection(ctx context.Context, conn *models.Connection, platform string, post *models.Post) (models.PublishResult, error)
}

type publisherService struct {
	connections ConnectionService
	webhook     WebhookService
	uploader    TwitterUploadService
	posts       repository.PostRepository
	history     repository.PostingHistoryRepository
}

func NewPublisherService(
	connections ConnectionService,
	webhook WebhookService,
	uploader TwitterUploadService,
	posts repository.PostRepository,
	history repository.PostingHistoryRepository) PublisherService {
	return &publisherService{
		connections: connections,
		webhook:     webhook,
		uploader:    uploader,
		posts:       posts,
		history:     history,
	}
}

// publishTarget is one platform's delivery path, chosen once per publish call.
type publishTarget interface {
	publish(ctx context.Context, post *models.Post) (models.PublishResult, error)
}

type webhookTarget struct {
	platform   string
	webhookURL string
	pageID     string
	webhook    WebhookService
}

type nativeTarget struct {
	platform   string
	webhookURL string
	creds      utils.OAuth1Credentials
	uploader   TwitterUploadService
	webhook    WebhookService
}

func (s *publisherService) Publish(ctx context.Context, accountID, platform string, post *models.Post) (models.PublishResult, error) {
	conn, err := s.connections.GetConnection(ctx, accountID)
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("%s: %w", normalizePlatform(platform), err)
	}
	return s.PublishWithConnection(ctx, conn, platform, post)
}

// PublishWithConnection never returns an error for a missing connection or webhook; those come
// back as unsuccessful results. Credential and transport failures are returned wrapped with the
// platform name.
func (s *publisherService) PublishWithConnection(ctx context.Context, conn *models.Connection, platform string, post *models.Post) (models.PublishResult, error) {
	platform = normalizePlatform(platform)

	target, err := s.resolveTarget(conn, platform)
	if err != nil {
		err = fmt.Errorf("%s: %w", platform, err)
		s.recordAttempt(ctx, post, models.PublishResult{Platform: platform, Error: err.Error()})
		return models.PublishResult{}, err
	}
	if target == nil {
		result := models.PublishResult{Platform: platform, Response: ResponseNotConnected}
		s.recordAttempt(ctx, post, result)
		return result, nil
	}

	result, err := target.publish(ctx, post)
	if err != nil {
		err = fmt.Errorf("%s: %w", platform, err)
		slog.Error("publish failed", "platform", platform, "post_id", post.ID, "error", err)
		s.recordAttempt(ctx, post, models.PublishResult{Platform: platform, Error: err.Error()})
		return models.PublishResult{}, err
	}

	s.recordAttempt(ctx, post, result)
	if result.Success && post.ID != "" {
		if err := s.posts.AddPublishedPlatform(ctx, post.ID, platform); err != nil {
			slog.Error("unable to record published platform", "platform", platform, "post_id", post.ID, "error", err)
		}
	}
	return result, nil
}

// resolveTarget returns nil, nil when the platform is not connected.
func (s *publisherService) resolveTarget(conn *models.Connection, platform string) (publishTarget, error) {
	if !IsConnected(conn, platform) {
		return nil, nil
	}
	pc, _ := conn.Lookup(platform)

	if models.IsNativePlatform(platform) {
		creds, err := s.connections.TwitterCredentials(pc)
		if err != nil {
			return nil, err
		}
		return &nativeTarget{
			platform:   platform,
			webhookURL: pc.WebhookURL,
			creds:      creds,
			uploader:   s.uploader,
			webhook:    s.webhook,
		}, nil
	}

	return &webhookTarget{
		platform:   platform,
		webhookURL: pc.WebhookURL,
		pageID:     pc.PageID,
		webhook:    s.webhook,
	}, nil
}

func envelopeFor(platform string, post *models.Post) transfer.PublishEnvelope {
	return transfer.PublishEnvelope{
		ImageURL:  post.Image.Template,
		Platform:  platform,
		Content:   post.Text.Post,
		VideoURL:  post.Image.Video,
		ShowVideo: post.Image.ShowVideo,
	}
}

func (t *webhookTarget) publish(ctx context.Context, post *models.Post) (models.PublishResult, error) {
	envelope := envelopeFor(t.platform, post)
	envelope.ID = t.pageID

	resp, err := t.webhook.Send(ctx, t.webhookURL, envelope)
	if err != nil {
		return models.PublishResult{}, err
	}
	return models.PublishResult{Platform: t.platform, Success: true, Response: resp}, nil
}

func (t *nativeTarget) publish(ctx context.Context, post *models.Post) (models.PublishResult, error) {
	var (
		mediaID string
		err     error
	)
	if post.Image.ShowVideo && post.Image.Video != "" {
		mediaID, err = t.uploader.UploadVideo(ctx, t.creds, post.Image.Video)
	} else {
		mediaID, err = t.uploader.UploadImage(ctx, t.creds, post.Image.Template)
	}
	if err != nil {
		return models.PublishResult{}, err
	}

	if t.webhookURL == "" {
		return models.PublishResult{Platform: t.platform, Response: ResponseNoWebhook}, nil
	}

	envelope := envelopeFor(t.platform, post)
	envelope.ID = NativeEnvelopeID
	envelope.ImageURL = mediaID

	resp, err := t.webhook.Send(ctx, t.webhookURL, envelope)
	if err != nil {
		return models.PublishResult{}, err
	}
	return models.PublishResult{Platform: t.platform, Success: true, Response: resp}, nil
}

func (s *publisherService) recordAttempt(ctx context.Context, post *models.Post, result models.PublishResult) {
	if post.ID == "" {
		return
	}
	entry := &models.PostingHistory{
		AccountID:    post.AccountID,
		PostID:       post.ID,
		Platform:     result.Platform,
		Success:      result.Success,
		Response:     result.Response,
		ErrorMessage: result.Error,
	}
	if !result.Success && entry.ErrorMessage == "" {
		entry.ErrorMessage = result.Response
	}
	if _, err := s.history.Create(ctx, entry); err != nil {
		slog.Error("unable to save posting history", "post_id", post.ID, "platform", result.Platform, "error", err)
	}
}
