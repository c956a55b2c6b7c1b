package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	config "github.com/maheshrc27/post-dispatch/configs"
)

// ObjectStore serves media that lives in our own bucket.
type ObjectStore interface {
	KeyFor(mediaURL string) (string, bool)
	ReadObject(ctx context.Context, key string, limit int64) (*FetchedMedia, error)
}

type R2Service struct {
	bucket    string
	publicURL string
	client    *s3.Client
}

// NewR2Service returns nil when R2 is not configured.
func NewR2Service(ctx context.Context, cfg config.R2) (*R2Service, error) {
	if cfg.AccountID == "" || cfg.BucketName == "" || cfg.PublicURL == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})

	return newR2Service(client, cfg.BucketName, cfg.PublicURL), nil
}

func newR2Service(client *s3.Client, bucket, publicURL string) *R2Service {
	return &R2Service{
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/") + "/",
		client:    client,
	}
}

// KeyFor maps a public media URL to its object key.
func (r *R2Service) KeyFor(mediaURL string) (string, bool) {
	if !strings.HasPrefix(mediaURL, r.publicURL) {
		return "", false
	}
	key := strings.TrimPrefix(mediaURL, r.publicURL)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}

func (r *R2Service) ReadObject(ctx context.Context, key string, limit int64) (*FetchedMedia, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > limit {
		return nil, ErrMediaTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	if int64(len(data)) > limit {
		return nil, ErrMediaTooLarge
	}
	if len(data) == 0 {
		return nil, errors.New("empty object")
	}

	return &FetchedMedia{Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}
