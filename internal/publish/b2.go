package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Backblaze/blazer/b2"

	"github.com/breeze-rmm/suma-sync/internal/config"
)

// B2Provider uploads to a Backblaze B2 bucket.
type B2Provider struct {
	bucket      *b2.Bucket
	concurrency int
}

// NewB2Provider authorizes with the account (or key) ID and application key.
func NewB2Provider(ctx context.Context, cfg config.PublishConfig) (*B2Provider, error) {
	if cfg.Bucket == "" || cfg.AccountID == "" || cfg.AccountKey == "" {
		return nil, errors.New("b2 bucket, account id and application key are required")
	}

	client, err := b2.NewClient(ctx, cfg.AccountID, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("authorize b2 account: %w", err)
	}
	bucket, err := client.Bucket(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open b2 bucket %s: %w", cfg.Bucket, err)
	}
	return &B2Provider{bucket: bucket, concurrency: max(cfg.Concurrency, 1)}, nil
}

func (p *B2Provider) Name() string { return "b2" }

// Upload writes localPath to the object named key. Files large enough are
// sent as concurrent large-file chunks.
func (p *B2Provider) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	w := p.bucket.Object(key).NewWriter(ctx)
	w.ConcurrentUploads = p.concurrency
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("b2 upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("b2 upload %s: %w", key, err)
	}
	return nil
}

func (p *B2Provider) Close() error { return nil }
