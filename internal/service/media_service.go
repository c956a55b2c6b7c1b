package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/h2non/filetype"
	config "github.com/maheshrc27/post-dispatch/configs"
)

const defaultVideoType = "video/mp4"

// FetchedMedia is a media asset held in memory for one upload.
type FetchedMedia struct {
	Data        []byte
	ContentType string
}

type MediaService interface {
	FetchImage(ctx context.Context, imageURL string) (*FetchedMedia, error)
	FetchVideo(ctx context.Context, videoURL string) (*FetchedMedia, error)
}

type mediaService struct {
	client   *http.Client
	store    ObjectStore
	maxBytes int64
	timeout  time.Duration
}

// NewMediaService builds the source fetcher. store may be nil; when set, URLs it
// recognizes are read through it instead of a public GET.
func NewMediaService(cfg config.Twitter, store ObjectStore) MediaService {
	return &mediaService{
		client:   &http.Client{},
		store:    store,
		maxBytes: cfg.MaxMediaBytes,
		timeout:  cfg.FetchTimeout,
	}
}

func (s *mediaService) FetchImage(ctx context.Context, imageURL string) (*FetchedMedia, error) {
	m, err := s.fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(m.ContentType, "image/") {
		return nil, fmt.Errorf("%w: %q is not an image", ErrInvalidContentType, m.ContentType)
	}
	return m, nil
}

// FetchVideo accepts known video types and application/octet-stream. A missing type is
// reported as video/mp4.
func (s *mediaService) FetchVideo(ctx context.Context, videoURL string) (*FetchedMedia, error) {
	m, err := s.fetch(ctx, videoURL)
	if err != nil {
		return nil, err
	}

	switch {
	case m.ContentType == "":
		m.ContentType = defaultVideoType
	case m.ContentType == "application/octet-stream":
		m.ContentType = sniffVideoType(m.Data)
	case isKnownVideoType(m.ContentType):
	default:
		return nil, fmt.Errorf("%w: %q is not a video", ErrInvalidContentType, m.ContentType)
	}
	return m, nil
}

func (s *mediaService) fetch(ctx context.Context, mediaURL string) (*FetchedMedia, error) {
	if mediaURL == "" {
		return nil, errors.New("media url is empty")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		m   *FetchedMedia
		err error
	)
	if key, ok := s.storeKey(mediaURL); ok {
		m, err = s.store.ReadObject(ctx, key, s.maxBytes)
	} else {
		m, err = s.get(ctx, mediaURL)
	}
	if err != nil {
		return nil, err
	}

	m.ContentType = baseMediaType(m.ContentType)
	return m, nil
}

func (s *mediaService) storeKey(mediaURL string) (string, bool) {
	if s.store == nil {
		return "", false
	}
	return s.store.KeyFor(mediaURL)
}

func (s *mediaService) get(ctx context.Context, mediaURL string) (*FetchedMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	if resp.ContentLength > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrMediaTooLarge, s.maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("fetch media: empty body")
	}

	return &FetchedMedia{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func baseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func isKnownVideoType(contentType string) bool {
	return strings.HasPrefix(contentType, "video/") && filetype.IsMIMESupported(contentType)
}

func sniffVideoType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsVideo(data) {
		return defaultVideoType
	}
	return kind.MIME.Value
}
