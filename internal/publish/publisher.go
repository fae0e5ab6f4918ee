package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/breeze-rmm/suma-sync/internal/audit"
	"github.com/breeze-rmm/suma-sync/internal/logging"
	"github.com/breeze-rmm/suma-sync/internal/suma"
	"github.com/breeze-rmm/suma-sync/internal/workerpool"
)

// Result summarises one publish run.
type Result struct {
	Files int
	Bytes int64
}

// Publisher uploads the content of lpp-source directories to a Provider.
type Publisher struct {
	provider    Provider
	prefix      string
	concurrency int
	journal     suma.Recorder
}

// NewPublisher returns a Publisher uploading with concurrency workers under
// prefix. A nil journal disables journaling.
func NewPublisher(provider Provider, prefix string, concurrency int, journal suma.Recorder) *Publisher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Publisher{
		provider:    provider,
		prefix:      prefix,
		concurrency: concurrency,
		journal:     journal,
	}
}

// Key returns the object key of rel, a slash-separated path relative to the
// lpp-source directory of req: <prefix>/<kind>/<from>[/<to>]/<rel>.
func (p *Publisher) Key(req *suma.RequestConfig, rel string) string {
	return path.Join(p.prefix, req.Target(), rel)
}

// Publish uploads every regular file of the lpp-source directory of req.
// Upload failures do not stop the others; they are returned joined.
func (p *Publisher) Publish(ctx context.Context, req *suma.RequestConfig) (Result, error) {
	start := time.Now()
	dir := req.LppSourcesDir()
	logger := log.With("provider", p.provider.Name(), "lppSource", req.PackageSourceName())
	logger.Info("publishing lpp-source", "dir", dir)

	var (
		files atomic.Int64
		bytes atomic.Int64
	)
	pool := workerpool.New(p.concurrency, p.concurrency*2)

	walkErr := filepath.WalkDir(dir, func(file string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		key := p.Key(req, filepath.ToSlash(rel))

		return pool.Submit(ctx, func() error {
			if err := p.provider.Upload(ctx, file, key); err != nil {
				logger.Error("upload failed", "key", key, logging.KeyError, err)
				return err
			}
			files.Add(1)
			bytes.Add(info.Size())
			logger.Debug("uploaded", "key", key, "size", humanize.IBytes(uint64(info.Size())))
			return nil
		})
	})

	uploadErr := pool.Shutdown(context.Background())
	result := Result{Files: int(files.Load()), Bytes: bytes.Load()}

	if walkErr != nil {
		walkErr = fmt.Errorf("walk %s: %w", dir, walkErr)
	}
	if err := errors.Join(walkErr, uploadErr); err != nil {
		p.record(audit.EventOperationFailed, req, result, err)
		return result, err
	}

	logger.Info("lpp-source published",
		"files", result.Files,
		"size", humanize.IBytes(uint64(result.Bytes)),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	p.record(audit.EventPublished, req, result, nil)
	return result, nil
}

func (p *Publisher) record(eventType string, req *suma.RequestConfig, result Result, err error) {
	if p.journal == nil {
		return
	}
	details := map[string]any{
		"action":   "Publish",
		"provider": p.provider.Name(),
		"files":    result.Files,
		"bytes":    result.Bytes,
	}
	if err != nil {
		details[logging.KeyError] = err.Error()
	}
	p.journal.Record(eventType, req.PackageSourceName(), details)
}
