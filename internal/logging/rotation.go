package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 3
)

// OpenAppend opens path for appending, creating it with perm, and returns
// its current size.
func OpenAppend(path string, perm os.FileMode) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// BackupName is the name of the index-th rotated copy of path.
func BackupName(path string, index int) string {
	return fmt.Sprintf("%s.%d", path, index)
}

// ShiftBackups moves path to path.1, path.1 to path.2 and so on, dropping
// whatever would land beyond path.<keep>. Missing files are skipped; every
// other failure is returned joined.
func ShiftBackups(path string, keep int) error {
	var errs []error
	if err := os.Remove(BackupName(path, keep)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	for i := keep - 1; i >= 1; i-- {
		if err := os.Rename(BackupName(path, i), BackupName(path, i+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.Rename(path, BackupName(path, 1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RotatingWriter appends to a log file and starts a new one once the next
// write would push it past its size limit. Safe for concurrent use.
type RotatingWriter struct {
	mu    sync.Mutex
	path  string
	limit int64
	keep  int
	f     *os.File
	size  int64
}

// NewRotatingWriter opens path, keeping at most maxBackups rotated copies of
// at most maxSizeMB each.
func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, size, err := OpenAppend(path, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &RotatingWriter{
		path:  path,
		limit: int64(maxSizeMB) << 20,
		keep:  maxBackups,
		f:     f,
		size:  size,
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.limit {
		w.f.Close()
		_ = ShiftBackups(w.path, w.keep)
		f, size, err := OpenAppend(w.path, 0o644)
		if err != nil {
			w.f = nil
			return 0, fmt.Errorf("log rotation: %w", err)
		}
		w.f, w.size = f, size
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Output builds the log destination: stdout alone when path is empty,
// otherwise stdout teed with a rotating file. The returned closer is never nil.
func Output(path string, maxSizeMB, maxBackups int) (io.Writer, io.Closer, error) {
	if path == "" {
		return os.Stdout, nopCloser{}, nil
	}
	rw, err := NewRotatingWriter(path, maxSizeMB, maxBackups)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stdout, rw), rw, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
