package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/internal/transfer"
	"golang.org/x/time/rate"
)

type WebhookService interface {
	// Send POSTs the envelope and returns the response body. Any 2xx is success.
	Send(ctx context.Context, webhookURL string, envelope transfer.PublishEnvelope) (string, error)
}

type webhookService struct {
	client  *http.Client
	limiter *rate.Limiter
}

func NewWebhookService(cfg config.Webhook) WebhookService {
	s := &webhookService{client: &http.Client{Timeout: cfg.Timeout}}
	if rps := cfg.RatePerSec; rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return s
}

func (s *webhookService) Send(ctx context.Context, webhookURL string, envelope transfer.PublishEnvelope) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("webhook rate limit: %w", err)
		}
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	text := strings.TrimSpace(string(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, text)
	}

	if text == "" {
		text = resp.Status
	}
	return text, nil
}
