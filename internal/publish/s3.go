package publish

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/breeze-rmm/suma-sync/internal/config"
)

// S3Provider uploads to an S3 or S3-compatible bucket. Large filesets are
// sent as multipart uploads.
type S3Provider struct {
	Bucket   string
	uploader *manager.Uploader
}

// NewS3Provider configures the AWS SDK from the default chain, overridden by
// static keys (account_id / account_key) and a custom endpoint when set.
func NewS3Provider(ctx context.Context, cfg config.PublishConfig) (*S3Provider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccountID != "" && cfg.AccountKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccountID, cfg.AccountKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})

	return &S3Provider{Bucket: cfg.Bucket, uploader: uploader}, nil
}

func (p *S3Provider) Name() string { return "s3" }

// Upload sends localPath to s3://<bucket>/<key>.
func (p *S3Provider) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return nil
}

func (p *S3Provider) Close() error { return nil }
