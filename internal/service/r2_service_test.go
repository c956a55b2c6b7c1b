package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testR2(t *testing.T, handler http.HandlerFunc) *R2Service {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return newR2Service(client, "media", "https://pub.example.r2.dev")
}

func TestR2KeyFor(t *testing.T) {
	r := newR2Service(nil, "media", "https://pub.example.r2.dev/")

	key, ok := r.KeyFor("https://pub.example.r2.dev/posts/p1/cover.png?v=2")
	assert.True(t, ok)
	assert.Equal(t, "posts/p1/cover.png", key)

	_, ok = r.KeyFor("https://cdn.other.com/posts/p1/cover.png")
	assert.False(t, ok)

	_, ok = r.KeyFor("https://pub.example.r2.dev/")
	assert.False(t, ok)
}

func TestR2ReadObject(t *testing.T) {
	r := testR2(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "/media/posts/p1/cover.png", req.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	})

	m, err := r.ReadObject(context.Background(), "posts/p1/cover.png", mib)
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.ContentType)
	assert.Equal(t, pngHeader, m.Data)
}

func TestR2ReadObjectTooLarge(t *testing.T) {
	r := testR2(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(make([]byte, 64))
	})

	_, err := r.ReadObject(context.Background(), "big.mp4", 32)
	assert.ErrorIs(t, err, ErrMediaTooLarge)
}

func TestNewR2ServiceUnconfigured(t *testing.T) {
	r, err := NewR2Service(context.Background(), config.R2{})
	require.NoError(t, err)
	assert.Nil(t, r)
}
