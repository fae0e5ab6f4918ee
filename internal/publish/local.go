package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// containedPath resolves key under basePath, rejecting keys that escape it.
func containedPath(basePath, key string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	joined, err := filepath.Abs(filepath.Join(absBase, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(joined, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q resolves outside %q", key, absBase)
	}
	return joined, nil
}

// LocalProvider copies files into a directory, typically an NFS export the
// NIM server reads lpp-sources from.
type LocalProvider struct {
	BasePath string
}

// NewLocalProvider creates a LocalProvider rooted at basePath.
func NewLocalProvider(basePath string) (*LocalProvider, error) {
	if basePath == "" {
		return nil, errors.New("local provider base path is required")
	}
	return &LocalProvider{BasePath: filepath.Clean(basePath)}, nil
}

func (p *LocalProvider) Name() string { return "local" }

// Upload copies localPath to <base>/<key>. The copy lands under a temporary
// name first, so readers never see a partial file.
func (p *LocalProvider) Upload(ctx context.Context, localPath, key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := containedPath(p.BasePath, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	return copyFile(localPath, dest)
}

func (p *LocalProvider) Close() error { return nil }

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	_, err = io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), info.Mode().Perm())
	}
	if err == nil {
		err = os.Chtimes(tmp.Name(), info.ModTime(), info.ModTime())
	}
	if err == nil {
		err = os.Rename(tmp.Name(), destPath)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}
