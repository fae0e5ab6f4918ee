package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/breeze-rmm/suma-sync/internal/config"
)

// GCSProvider uploads to a Google Cloud Storage bucket.
type GCSProvider struct {
	Bucket string
	client *storage.Client
}

// NewGCSProvider uses application default credentials unless a credentials
// file is configured.
func NewGCSProvider(ctx context.Context, cfg config.PublishConfig) (*GCSProvider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSProvider{Bucket: cfg.Bucket, client: client}, nil
}

func (p *GCSProvider) Name() string { return "gcs" }

// Upload streams localPath to gs://<bucket>/<key>.
func (p *GCSProvider) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	w := p.client.Bucket(p.Bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("gcs upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs upload %s: %w", key, err)
	}
	return nil
}

func (p *GCSProvider) Close() error { return p.client.Close() }
