//go:build unix

package suma

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTool writes a shell script standing in for the tool.
func writeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suma")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func startTool(t *testing.T, ctx context.Context, body string) Process {
	t.Helper()
	proc, err := ExecRunner{}.Start(ctx, Invocation{Path: writeTool(t, body), Env: os.Environ()})
	require.NoError(t, err)
	return proc
}

// within fails the test if fn has not returned after d.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", what, d)
	}
}

func TestExecRunnerSeparatesStdoutAndStderr(t *testing.T) {
	proc := startTool(t, context.Background(), "echo out1\necho err1 >&2\necho out2\n")

	stdout, err := io.ReadAll(proc.Stdout())
	require.NoError(t, err)
	stderr, err := io.ReadAll(proc.Stderr())
	require.NoError(t, err)

	assert.Equal(t, "out1\nout2\n", string(stdout))
	assert.Equal(t, "err1\n", string(stderr))
	assert.NoError(t, proc.Wait())
}

func TestExecRunnerLargeStderrDoesNotBlockStdout(t *testing.T) {
	proc := startTool(t, context.Background(), "head -c 262144 /dev/zero | tr '\\000' e >&2\necho done\n")

	var stdout []byte
	within(t, 10*time.Second, "reading stdout", func() {
		var err error
		stdout, err = io.ReadAll(proc.Stdout())
		assert.NoError(t, err)
	})
	assert.Equal(t, "done\n", string(stdout))

	stderr, err := io.ReadAll(proc.Stderr())
	require.NoError(t, err)
	assert.Len(t, stderr, 262144)
	assert.NoError(t, proc.Wait())
}

func TestExecRunnerReportsExitStatus(t *testing.T) {
	proc := startTool(t, context.Background(), "echo partial\nexit 3\n")

	err := proc.Wait()
	require.Error(t, err)
	var exit interface{ ExitCode() int }
	require.True(t, errors.As(err, &exit), "error %T has no exit code", err)
	assert.Equal(t, 3, exit.ExitCode())
}

func TestExecRunnerWaitDrainsUnreadOutput(t *testing.T) {
	proc := startTool(t, context.Background(), "seq 1 50000\nseq 1 50000 >&2\n")

	within(t, 10*time.Second, "Wait", func() {
		assert.NoError(t, proc.Wait())
	})
}

func TestExecRunnerCancelKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The background sleep inherits stdout, so the pipe only closes once the
	// whole group is gone.
	proc := startTool(t, ctx, "sleep 30 &\necho started\nsleep 30\n")

	line, err := bufio.NewReader(proc.Stdout()).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "started\n", line)

	cancel()
	within(t, 10*time.Second, "Wait after cancel", func() {
		assert.Error(t, proc.Wait())
	})
}

func TestPreviewSurvivesOverlongOutputLine(t *testing.T) {
	tool := writeTool(t, strings.Join([]string{
		"head -c 2097152 /dev/zero | tr '\\000' x",
		"echo",
		"seq 1 20000 | sed 's/^/Filtering /'",
		"echo 'fixes preview done' >&2",
		"echo '3 downloaded'",
		"",
	}, "\n"))
	s := NewSession(newTestRequest(t, RequestOptions{}), WithToolPath(tool), WithProgress(io.Discard, time.Second))

	var (
		result PreviewResult
		err    error
	)
	within(t, 20*time.Second, "Preview", func() {
		result, err = s.Preview(context.Background())
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Counters.Downloaded)
	assert.True(t, result.Missing)
}
