package suma

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/breeze-rmm/suma-sync/internal/audit"
	"github.com/breeze-rmm/suma-sync/internal/logging"
)

var log = logging.L("suma")

const (
	DefaultToolPath         = "/usr/sbin/suma"
	DefaultProgressInterval = time.Second

	maxLineSize = 1024 * 1024
)

// Recorder journals operations. *audit.Logger implements it.
type Recorder interface {
	Record(eventType, target string, details map[string]any)
}

// Session runs metadata, preview and download operations for one request.
// A Session is not safe for concurrent use.
type Session struct {
	req              *RequestConfig
	toolPath         string
	runner           Runner
	classifier       *OutputClassifier
	journal          Recorder
	progressOut      io.Writer
	progressInterval time.Duration

	last Counters
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRunner replaces the process runner (default ExecRunner).
func WithRunner(r Runner) SessionOption {
	return func(s *Session) { s.runner = r }
}

// WithToolPath sets the tool executable (default /usr/sbin/suma).
func WithToolPath(path string) SessionOption {
	return func(s *Session) {
		if path != "" {
			s.toolPath = path
		}
	}
}

// WithRecorder journals every operation to r.
func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.journal = r }
}

// WithProgress sets where download status lines go and how often.
func WithProgress(w io.Writer, interval time.Duration) SessionOption {
	return func(s *Session) {
		if w != nil {
			s.progressOut = w
		}
		if interval > 0 {
			s.progressInterval = interval
		}
	}
}

// NewSession creates a Session for req.
func NewSession(req *RequestConfig, opts ...SessionOption) *Session {
	s := &Session{
		req:              req,
		toolPath:         DefaultToolPath,
		runner:           ExecRunner{},
		classifier:       NewOutputClassifier(),
		progressOut:      os.Stderr,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request returns the session's request.
func (s *Session) Request() *RequestConfig { return s.req }

// Counters returns the counters of the last successful preview or download.
func (s *Session) Counters() Counters { return s.last }

// Metadata fetches the descriptor files for the request's from-level into
// its metadata directory. Known tool diagnostics on stderr make the result a
// soft failure (OK false); only a tool that cannot be run or read returns an
// error, always a *MetadataError.
func (s *Session) Metadata(ctx context.Context) (MetadataResult, error) {
	inv := BuildInvocation(s.toolPath, s.req, ActionMetadata)
	command := inv.String()
	logger := logging.WithTarget(log, s.req.PackageSourceName(), string(ActionMetadata))
	logger.Info("SUMA metadata operation", "command", command)
	s.record(audit.EventOperationStarted, ActionMetadata, map[string]any{"command": command})

	fail := func(err error) (MetadataResult, error) {
		s.record(audit.EventOperationFailed, ActionMetadata, map[string]any{"command": command, logging.KeyError: err.Error()})
		return MetadataResult{}, &MetadataError{Command: command, Err: err}
	}

	proc, err := s.runner.Start(ctx, inv)
	if err != nil {
		return fail(&LaunchError{Command: command, Err: err})
	}

	readErr := consume(proc.Stdout(), func(line string) {
		logger.Info(line)
	})

	result := MetadataResult{OK: true}
	stderrErr := consume(proc.Stderr(), func(line string) {
		if diag, ok := matchDiagnostic(line, metadataDiagnostics...); ok && result.OK {
			result = MetadataResult{OK: false, Reason: diag}
		}
		logger.Error(line)
	})

	if err := proc.Wait(); err != nil {
		var exit interface{ ExitCode() int }
		if !errors.As(err, &exit) {
			return fail(err)
		}
		logger.Info("metadata tool exited", "exitStatus", exit.ExitCode())
	}
	if err := errors.Join(readErr, stderrErr); err != nil {
		return fail(fmt.Errorf("read tool output: %w", err))
	}

	if result.OK {
		s.record(audit.EventOperationCompleted, ActionMetadata, map[string]any{"command": command})
	} else {
		s.record(audit.EventOperationFailed, ActionMetadata, map[string]any{"command": command, "reason": result.Reason})
	}
	logger.Info("done SUMA metadata operation", "ok", result.OK, "reason", result.Reason)
	return result, nil
}

// Preview asks the tool what a download would fetch. Only the "no fixes
// match" diagnostic is an error (*PreviewError); the exit status is not
// consulted.
func (s *Session) Preview(ctx context.Context) (PreviewResult, error) {
	inv := BuildInvocation(s.toolPath, s.req, ActionPreview)
	command := inv.String()
	logger := logging.WithTarget(log, s.req.PackageSourceName(), string(ActionPreview))
	logger.Info("SUMA preview operation", "command", command)
	s.record(audit.EventOperationStarted, ActionPreview, map[string]any{"command": command})

	proc, err := s.runner.Start(ctx, inv)
	if err != nil {
		launchErr := &LaunchError{Command: command, Err: err}
		s.record(audit.EventOperationFailed, ActionPreview, map[string]any{"command": command, logging.KeyError: launchErr.Error()})
		return PreviewResult{}, launchErr
	}

	var counters Counters
	readErr := consume(proc.Stdout(), func(line string) {
		s.classifier.Classify(line, &counters)
		logger.Info(line)
	})
	logger.Info("preview counters",
		"gib", counters.GiB,
		"downloaded", counters.Downloaded,
		"failed", counters.Failed,
		"skipped", counters.Skipped)

	noFixes := false
	stderrErr := consume(proc.Stderr(), func(line string) {
		if _, ok := matchDiagnostic(line, diagNoFixes); ok {
			noFixes = true
		}
		logger.Error(line)
	})

	if err := proc.Wait(); err != nil {
		logger.Debug("preview exit status not used", logging.KeyError, err)
	}
	if err := errors.Join(readErr, stderrErr); err != nil {
		logger.Warn("preview output truncated", logging.KeyError, err)
	}

	if noFixes {
		previewErr := &PreviewError{Command: command}
		s.record(audit.EventOperationFailed, ActionPreview, map[string]any{"command": command, "reason": diagNoFixes})
		return PreviewResult{}, previewErr
	}

	result := PreviewResult{Counters: counters, Missing: counters.Missing()}
	s.last = counters

	logger.Warn(fmt.Sprintf("Preview: %d downloaded (%.2f GiB), %d failed, %d skipped fixes",
		counters.Downloaded, counters.GiB, counters.Failed, counters.Skipped))
	logger.Info("done SUMA preview operation", "missing", result.Missing)
	s.record(audit.EventOperationCompleted, ActionPreview, countersDetails(command, counters))
	return result, nil
}

// Download fetches the fixes into the lpp-source directory while a progress
// line reports per-fix results against baseline, typically the counters of
// a preceding Preview (nil if none). Any non-success exit status is a
// *DownloadError regardless of what the output said.
func (s *Session) Download(ctx context.Context, baseline *Counters) (DownloadResult, error) {
	inv := BuildInvocation(s.toolPath, s.req, ActionDownload)
	command := inv.String()
	logger := logging.WithTarget(log, s.req.PackageSourceName(), string(ActionDownload))
	logger.Info("SUMA download operation", "command", command)
	s.record(audit.EventOperationStarted, ActionDownload, map[string]any{"command": command})

	var expected Counters
	if baseline != nil {
		expected = *baseline
		logger.Info(fmt.Sprintf("Start downloading %d fixes (~ %.2f GiB, %s).",
			expected.Downloaded, expected.GiB, humanize.IBytes(expected.Bytes())))
	} else {
		logger.Info("Start downloading fixes.")
	}

	fail := func(err error) (DownloadResult, error) {
		s.record(audit.EventOperationFailed, ActionDownload, map[string]any{"command": command, logging.KeyError: err.Error()})
		return DownloadResult{}, &DownloadError{Command: command, Err: err}
	}

	proc, err := s.runner.Start(ctx, inv)
	if err != nil {
		return fail(&LaunchError{Command: command, Err: err})
	}

	var (
		tally    Tally
		counters Counters
	)
	emit, finish := progressSink(s.progressOut)
	reporter := StartProgress(s.progressInterval, func(elapsed time.Duration) string {
		succeeded, failed, skipped := tally.Snapshot()
		return formatProgress(succeeded, failed, skipped, expected, elapsed)
	}, emit)

	readErr := consume(proc.Stdout(), func(line string) {
		tally.Observe(line)
		s.classifier.Classify(line, &counters)
		logger.Info(line)
	})

	// The reporter must not outlive stdout consumption.
	reporter.Stop()
	finish()

	stderrErr := consume(proc.Stderr(), func(line string) {
		logger.Error(line)
	})

	waitErr := proc.Wait()

	succeeded, failed, skipped := tally.Snapshot()
	logger.Info(fmt.Sprintf("Finish downloading %d fixes (~ %.2f GiB).", succeeded, counters.GiB))
	logger.Info("done SUMA download operation", "command", command)

	if waitErr != nil {
		return fail(waitErr)
	}
	if err := errors.Join(readErr, stderrErr); err != nil {
		logger.Warn("download output truncated", logging.KeyError, err)
	}

	s.last = counters
	details := countersDetails(command, counters)
	details["succeeded"] = succeeded
	s.record(audit.EventOperationCompleted, ActionDownload, details)

	return DownloadResult{
		Counters:  counters,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
	}, nil
}

func (s *Session) record(eventType string, action Action, details map[string]any) {
	if s.journal == nil {
		return
	}
	details["action"] = string(action)
	s.journal.Record(eventType, s.req.PackageSourceName(), details)
}

func countersDetails(command string, c Counters) map[string]any {
	return map[string]any{
		"command":    command,
		"gib":        c.GiB,
		"downloaded": c.Downloaded,
		"failed":     c.Failed,
		"skipped":    c.Skipped,
	}
}

// consume calls fn for every line of r, without the line terminator. Lines
// longer than maxLineSize are cut short but reading goes on, so the tool never
// blocks on a full pipe.
func consume(r io.Reader, fn func(line string)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		chunk, more, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			_, _ = io.Copy(io.Discard, r)
			return err
		}
		if room := maxLineSize - len(line); room > 0 {
			line = append(line, chunk[:min(len(chunk), room)]...)
		}
		if more {
			continue
		}
		fn(strings.TrimRight(string(line), "\r"))
		line = line[:0]
	}
}
