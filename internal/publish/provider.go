// Package publish mirrors downloaded lpp-sources to a local or object store.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/breeze-rmm/suma-sync/internal/config"
	"github.com/breeze-rmm/suma-sync/internal/logging"
)

var log = logging.L("publish")

// ErrNotConfigured is returned by New when no provider is selected.
var ErrNotConfigured = errors.New("publishing is not configured")

// Provider stores files under slash-separated keys.
type Provider interface {
	Name() string
	Upload(ctx context.Context, localPath, key string) error
	Close() error
}

// New builds the provider selected by cfg.
func New(ctx context.Context, cfg config.PublishConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, ErrNotConfigured
	case "local":
		return NewLocalProvider(cfg.Path)
	case "s3":
		return NewS3Provider(ctx, cfg)
	case "gcs":
		return NewGCSProvider(ctx, cfg)
	case "azure":
		return NewAzureProvider(cfg)
	case "b2":
		return NewB2Provider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown publish provider %q", cfg.Provider)
	}
}
