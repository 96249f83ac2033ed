// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	appconfig "gamification-engine/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Store uploads badge icons to a Cloudflare R2 bucket through the S3 API.
type R2Store struct {
	client     objectPutter
	bucket     string
	cdnBaseURL string
	maxRetries uint64
	logger     *zap.Logger
}

func NewR2Store(ctx context.Context, cfg appconfig.StorageConfig, logger *zap.Logger) (*R2Store, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	cdn := cfg.CDNBaseURL
	if cdn == "" {
		cdn = endpoint
	}
	return newR2Store(client, cfg.Bucket, cdn, cfg.MaxRetries, logger), nil
}

func newR2Store(client objectPutter, bucket, cdnBaseURL string, maxRetries uint64, logger *zap.Logger) *R2Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &R2Store{
		client:     client,
		bucket:     bucket,
		cdnBaseURL: strings.TrimRight(cdnBaseURL, "/"),
		maxRetries: maxRetries,
		logger:     logger.Named("r2"),
	}
}

// Upload puts data under key and returns the public CDN URL.
func (r *R2Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	operation := func() error {
		_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(r.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx),
		func(err error, d time.Duration) {
			r.logger.Warn("icon upload attempt failed",
				zap.String("key", key),
				zap.Error(err),
				zap.Duration("backoff", d))
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", r.cdnBaseURL, key), nil
}
