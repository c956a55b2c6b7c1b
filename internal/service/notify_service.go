package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/slack-go/slack"
)

// Notifier reports posts the scheduler could not fully publish.
type Notifier interface {
	NotifyFailures(ctx context.Context, post *models.Post, errs []models.PlatformError) error
}

type slackNotifier struct {
	api     *slack.Client
	channel string
}

type logNotifier struct{}

// NewNotifier posts to Slack when a token and channel are configured and only logs otherwise.
func NewNotifier(cfg config.Slack, opts ...slack.Option) Notifier {
	if cfg.Token == "" || cfg.Channel == "" {
		return logNotifier{}
	}
	return &slackNotifier{api: slack.New(cfg.Token, opts...), channel: cfg.Channel}
}

func (n *slackNotifier) NotifyFailures(ctx context.Context, post *models.Post, errs []models.PlatformError) error {
	if len(errs) == 0 {
		return nil
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(failureText(post, errs), false))
	if err != nil {
		slog.Error("slack notification failed", "post_id", post.ID, "error", err)
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

func (logNotifier) NotifyFailures(_ context.Context, post *models.Post, errs []models.PlatformError) error {
	if len(errs) > 0 {
		slog.Warn("scheduled post had failures", "post_id", post.ID, "account_id", post.AccountID, "errors", len(errs))
	}
	return nil
}

func failureText(post *models.Post, errs []models.PlatformError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scheduled post %s (account %s, status %s) failed on %d platform(s):", post.ID, post.AccountID, post.Status, len(errs))
	for _, e := range errs {
		fmt.Fprintf(&b, "\n• %s: %s", e.Platform, e.Error)
	}
	return b.String()
}
