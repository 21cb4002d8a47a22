// Package archive optionally uploads completed DCC transfers to S3.
// Disabled unless a bucket is configured.
package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dccbot/dccagent/internal/config"
)

// Uploader archives a completed local file under a remote key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// S3Uploader uploads completed transfers to one configured bucket/prefix
// using the SDK's multipart manager.Uploader, so large packs don't need to
// fit in memory.
type S3Uploader struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Uploader builds an uploader from ArchiveConfig, or returns (nil, nil)
// when archival is disabled (no bucket configured).
func NewS3Uploader(ctx context.Context, cfg config.ArchiveConfig) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Uploader{
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// Upload streams localPath to s3://bucket/prefix/key.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s for archival: %w", localPath, err)
	}
	defer f.Close()

	fullKey := key
	if u.prefix != "" {
		fullKey = u.prefix + "/" + key
	}

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(fullKey),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s/%s: %w", localPath, u.bucket, fullKey, err)
	}
	return nil
}
