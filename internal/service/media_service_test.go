package service

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp4Header is enough of an ftyp box for content sniffing.
var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0, 0, 0, 0, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}

type fakeObjectStore struct {
	prefix string
	keys   []string
	media  *FetchedMedia
}

func (f *fakeObjectStore) KeyFor(mediaURL string) (string, bool) {
	if len(mediaURL) > len(f.prefix) && mediaURL[:len(f.prefix)] == f.prefix {
		return mediaURL[len(f.prefix):], true
	}
	return "", false
}

func (f *fakeObjectStore) ReadObject(_ context.Context, key string, limit int64) (*FetchedMedia, error) {
	f.keys = append(f.keys, key)
	if int64(len(f.media.Data)) > limit {
		return nil, ErrMediaTooLarge
	}
	cp := *f.media
	return &cp, nil
}

func testMediaConfig(maxBytes int64) config.Twitter {
	return config.Twitter{MaxMediaBytes: maxBytes}
}

func TestFetchImageContentTypes(t *testing.T) {
	srv := mediaServer(t, map[string]struct {
		contentType string
		data        []byte
	}{
		"/ok.png":    {"image/png", pngHeader},
		"/ok.jpg":    {"image/jpeg; charset=binary", []byte{0xFF, 0xD8, 0xFF, 0xE0}},
		"/page.html": {"text/html", []byte("<html>")},
		"/notype":    {"", pngHeader},
	})
	svc := NewMediaService(testMediaConfig(mib), nil)
	ctx := context.Background()

	m, err := svc.FetchImage(ctx, srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.ContentType)
	assert.Equal(t, pngHeader, m.Data)

	m, err = svc.FetchImage(ctx, srv.URL+"/ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", m.ContentType)

	_, err = svc.FetchImage(ctx, srv.URL+"/page.html")
	assert.ErrorIs(t, err, ErrInvalidContentType)

	_, err = svc.FetchImage(ctx, srv.URL+"/notype")
	assert.ErrorIs(t, err, ErrInvalidContentType)
}

func TestFetchVideoContentTypes(t *testing.T) {
	srv := mediaServer(t, map[string]struct {
		contentType string
		data        []byte
	}{
		"/clip.mov":   {"video/quicktime", []byte("moov")},
		"/octet-mp4":  {"application/octet-stream", mp4Header},
		"/octet-junk": {"application/octet-stream", []byte("not a video at all")},
		"/notype":     {"", []byte("bytes without a type")},
		"/image.png":  {"image/png", pngHeader},
		"/weird":      {"video/x-not-a-real-format", []byte("data")},
	})
	svc := NewMediaService(testMediaConfig(mib), nil)
	ctx := context.Background()

	tests := []struct {
		path    string
		want    string
		wantErr error
	}{
		{"/clip.mov", "video/quicktime", nil},
		{"/octet-mp4", "video/mp4", nil},
		{"/octet-junk", "video/mp4", nil},
		{"/notype", "video/mp4", nil},
		{"/image.png", "", ErrInvalidContentType},
		{"/weird", "", ErrInvalidContentType},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, err := svc.FetchVideo(ctx, srv.URL+tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.ContentType)
		})
	}
}

func TestFetchEnforcesSizeCap(t *testing.T) {
	big := bytes.Repeat([]byte{1}, 2048)
	srv := mediaServer(t, map[string]struct {
		contentType string
		data        []byte
	}{"/big.mp4": {"video/mp4", big}})

	_, err := NewMediaService(testMediaConfig(1024), nil).FetchVideo(context.Background(), srv.URL+"/big.mp4")
	assert.ErrorIs(t, err, ErrMediaTooLarge)

	// No Content-Length: the cap is enforced while reading.
	chunked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		for i := 0; i < 4; i++ {
			_, _ = w.Write(big[:512])
			w.(http.Flusher).Flush()
		}
	}))
	defer chunked.Close()

	_, err = NewMediaService(testMediaConfig(1024), nil).FetchVideo(context.Background(), chunked.URL)
	assert.ErrorIs(t, err, ErrMediaTooLarge)
}

func TestFetchRejectsBadStatusAndEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Length", strconv.Itoa(0))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	svc := NewMediaService(testMediaConfig(mib), nil)
	_, err := svc.FetchImage(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")

	_, err = svc.FetchImage(context.Background(), srv.URL+"/empty")
	assert.ErrorContains(t, err, "empty body")

	_, err = svc.FetchImage(context.Background(), "")
	assert.Error(t, err)
}

func TestFetchReadsOwnBucketThroughStore(t *testing.T) {
	store := &fakeObjectStore{
		prefix: "https://media.example.com/",
		media:  &FetchedMedia{Data: pngHeader, ContentType: "image/png"},
	}
	svc := NewMediaService(testMediaConfig(mib), store)

	m, err := svc.FetchImage(context.Background(), "https://media.example.com/posts/abc.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, m.Data)
	assert.Equal(t, []string{"posts/abc.png"}, store.keys)
}
