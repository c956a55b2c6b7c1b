package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/transfer"
	"github.com/maheshrc27/post-dispatch/pkg/utils"
)

var (
	ErrInvalidContentType = errors.New("invalid content type")
	ErrMediaTooLarge      = errors.New("media exceeds size limit")
	ErrProcessingFailed   = errors.New("media processing failed")
	ErrProcessingTimeout  = errors.New("media processing timed out")
)

// UploadError is returned for every failure of a native media upload.
type UploadError struct {
	Platform string
	Op       string // fetch, upload, init, append, finalize, status
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s media %s: %v", e.Platform, e.Op, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

type uploadState string

const (
	uploadInit       uploadState = "init"
	uploadAppending  uploadState = "appending"
	uploadFinalizing uploadState = "finalizing"
	uploadProcessing uploadState = "processing"
	uploadDone       uploadState = "done"
	uploadFailed     uploadState = "failed"
)

// twitterUploadSession tracks one chunked upload. It lives only for the duration of the call.
type twitterUploadSession struct {
	MediaID    string
	TotalBytes int64
	BytesSent  int64
	State      uploadState
}

type TwitterUploadService interface {
	UploadImage(ctx context.Context, creds utils.OAuth1Credentials, imageURL string) (string, error)
	UploadVideo(ctx context.Context, creds utils.OAuth1Credentials, videoURL string) (string, error)
}

type twitterUploadService struct {
	cfg    config.Twitter
	media  MediaService
	client *http.Client
}

func NewTwitterUploadService(cfg config.Twitter, media MediaService) TwitterUploadService {
	return &twitterUploadService{
		cfg:    cfg,
		media:  media,
		client: &http.Client{},
	}
}

func uploadErr(op string, err error) error {
	return &UploadError{Platform: models.PlatformTwitter, Op: op, Err: err}
}

// UploadImage sends the whole image in one signed multipart request and returns the media id.
func (s *twitterUploadService) UploadImage(ctx context.Context, creds utils.OAuth1Credentials, imageURL string) (string, error) {
	img, err := s.media.FetchImage(ctx, imageURL)
	if err != nil {
		return "", uploadErr("fetch", err)
	}

	category := "tweet_image"
	if filetype.Is(img.Data, "gif") {
		category = "tweet_gif"
	}

	query := url.Values{"media_category": {category}}
	resp, err := s.sendBinary(ctx, creds, query, img.Data)
	if err != nil {
		return "", uploadErr("upload", err)
	}
	if resp.MediaIDString == "" {
		return "", uploadErr("upload", errors.New("response has no media id"))
	}

	if resp.ProcessingInfo != nil {
		if err := s.awaitProcessing(ctx, creds, resp.MediaIDString, resp.ProcessingInfo); err != nil {
			return "", err
		}
	}

	slog.Info("twitter image uploaded", "media_id", resp.MediaIDString, "bytes", len(img.Data))
	return resp.MediaIDString, nil
}

// UploadVideo runs INIT, sequential APPENDs, FINALIZE and, when the remote side processes the
// video asynchronously, STATUS polling.
func (s *twitterUploadService) UploadVideo(ctx context.Context, creds utils.OAuth1Credentials, videoURL string) (string, error) {
	video, err := s.media.FetchVideo(ctx, videoURL)
	if err != nil {
		return "", uploadErr("fetch", err)
	}

	session := &twitterUploadSession{TotalBytes: int64(len(video.Data)), State: uploadInit}

	initResp, err := s.sendForm(ctx, creds, http.MethodPost, url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(session.TotalBytes, 10)},
		"media_type":     {video.ContentType},
		"media_category": {"tweet_video"},
	})
	if err != nil {
		session.State = uploadFailed
		return "", uploadErr("init", err)
	}
	if initResp.MediaIDString == "" {
		session.State = uploadFailed
		return "", uploadErr("init", errors.New("response has no media id"))
	}
	session.MediaID = initResp.MediaIDString

	session.State = uploadAppending
	if err := s.appendChunks(ctx, creds, session, video.Data); err != nil {
		session.State = uploadFailed
		return "", err
	}

	session.State = uploadFinalizing
	finalResp, err := s.sendForm(ctx, creds, http.MethodPost, url.Values{
		"command":  {"FINALIZE"},
		"media_id": {session.MediaID},
	})
	if err != nil {
		session.State = uploadFailed
		return "", uploadErr("finalize", err)
	}

	if finalResp.ProcessingInfo != nil {
		session.State = uploadProcessing
		if err := s.awaitProcessing(ctx, creds, session.MediaID, finalResp.ProcessingInfo); err != nil {
			session.State = uploadFailed
			return "", err
		}
	}

	session.State = uploadDone
	slog.Info("twitter video uploaded", "media_id", session.MediaID, "bytes", session.BytesSent)
	return session.MediaID, nil
}

// appendChunks uploads segments in index order; each call returns before the next starts.
func (s *twitterUploadService) appendChunks(ctx context.Context, creds utils.OAuth1Credentials, session *twitterUploadSession, data []byte) error {
	chunkSize := s.cfg.ChunkSize
	for index, offset := 0, 0; offset < len(data); index, offset = index+1, offset+chunkSize {
		end := min(offset+chunkSize, len(data))

		query := url.Values{
			"command":       {"APPEND"},
			"media_id":      {session.MediaID},
			"segment_index": {strconv.Itoa(index)},
		}
		if _, err := s.sendBinary(ctx, creds, query, data[offset:end]); err != nil {
			return uploadErr("append", fmt.Errorf("segment %d: %w", index, err))
		}
		session.BytesSent += int64(end - offset)
	}
	return nil
}

func (s *twitterUploadService) awaitProcessing(ctx context.Context, creds utils.OAuth1Credentials, mediaID string, info *transfer.TwitterProcessingInfo) error {
	if done, err := processingDone(info); done || err != nil {
		return err
	}

	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		if err := sleepContext(ctx, s.cfg.PollInterval); err != nil {
			return uploadErr("status", err)
		}

		resp, err := s.sendForm(ctx, creds, http.MethodGet, url.Values{
			"command":  {"STATUS"},
			"media_id": {mediaID},
		})
		if err != nil {
			return uploadErr("status", err)
		}

		done, err := processingDone(resp.ProcessingInfo)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		slog.Debug("twitter media still processing", "media_id", mediaID, "attempt", attempt)
	}

	return uploadErr("status", fmt.Errorf("%w after %d checks", ErrProcessingTimeout, s.cfg.MaxPollAttempts))
}

// processingDone treats absent processing info as ready.
func processingDone(info *transfer.TwitterProcessingInfo) (bool, error) {
	if info == nil {
		return true, nil
	}
	switch info.State {
	case transfer.TwitterProcessingSucceeded:
		return true, nil
	case transfer.TwitterProcessingFailed:
		msg := "unknown error"
		if info.Error != nil && info.Error.Message != "" {
			msg = info.Error.Message
		}
		return false, uploadErr("status", fmt.Errorf("%w: %s", ErrProcessingFailed, msg))
	}
	return false, nil
}

// sendForm signs the parameters and sends them as a url-encoded body, or as the query for GET.
func (s *twitterUploadService) sendForm(ctx context.Context, creds utils.OAuth1Credentials, method string, params url.Values) (*transfer.TwitterMediaResponse, error) {
	target := s.cfg.UploadURL
	var body io.Reader
	var form url.Values

	if method == http.MethodGet {
		target = withQuery(target, params)
	} else {
		form = params
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return s.do(req, creds, form)
}

// sendBinary puts params in the query string, where they are signed, and the bytes in a
// multipart "media" part, which is not.
func (s *twitterUploadService) sendBinary(ctx context.Context, creds utils.OAuth1Credentials, params url.Values, data []byte) (*transfer.TwitterMediaResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "media")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, withQuery(s.cfg.UploadURL, params), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, creds, nil)
}

func (s *twitterUploadService) do(req *http.Request, creds utils.OAuth1Credentials, form url.Values) (*transfer.TwitterMediaResponse, error) {
	auth, err := utils.SignOAuth1(req.Method, req.URL.String(), form, creds)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set("Authorization", auth)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out transfer.TwitterMediaResponse
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if out.MediaIDString == "" && out.MediaID != 0 {
		out.MediaIDString = strconv.FormatInt(out.MediaID, 10)
	}
	return &out, nil
}

func withQuery(base string, params url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
