package publish

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/breeze-rmm/suma-sync/internal/config"
)

// AzureProvider uploads to an Azure Blob Storage container.
type AzureProvider struct {
	Container   string
	concurrency uint16
	client      *azblob.Client
}

// NewAzureProvider authenticates with the connection string if set, else with
// the account name (account_id) and shared key (account_key).
func NewAzureProvider(cfg config.PublishConfig) (*AzureProvider, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure container is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountID != "" && cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountID, cfg.AccountKey)
		if err != nil {
			break
		}
		serviceURL := cfg.Endpoint
		if serviceURL == "" {
			serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountID)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	default:
		return nil, errors.New("azure connection string or account credentials are required")
	}
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}

	concurrency := uint16(1)
	if cfg.Concurrency > 0 && cfg.Concurrency <= 0xffff {
		concurrency = uint16(cfg.Concurrency)
	}
	return &AzureProvider{Container: cfg.Container, concurrency: concurrency, client: client}, nil
}

func (p *AzureProvider) Name() string { return "azure" }

// Upload sends localPath as a block blob named key.
func (p *AzureProvider) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	_, err = p.client.UploadFile(ctx, p.Container, key, f, &azblob.UploadFileOptions{
		Concurrency: p.concurrency,
	})
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", key, err)
	}
	return nil
}

func (p *AzureProvider) Close() error { return nil }
