package suma

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRun is the scripted behaviour of one tool invocation.
type fakeRun struct {
	stdout   string
	stderr   string
	waitErr  error
	startErr error
}

// fakeRunner replays scripted runs instead of starting processes.
type fakeRunner struct {
	mu     sync.Mutex
	script func(inv Invocation) fakeRun
	calls  []Invocation
}

func (f *fakeRunner) Start(_ context.Context, inv Invocation) (Process, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	run := f.script(inv)
	if run.startErr != nil {
		return nil, run.startErr
	}
	return &fakeProcess{run: run}, nil
}

func (f *fakeRunner) Calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.calls...)
}

// scripted returns runs in call order, repeating the last one.
func scripted(runs ...fakeRun) *fakeRunner {
	f := &fakeRunner{}
	next := 0
	f.script = func(Invocation) fakeRun {
		f.mu.Lock()
		defer f.mu.Unlock()
		run := runs[min(next, len(runs)-1)]
		next++
		return run
	}
	return f
}

type fakeProcess struct {
	run fakeRun
}

func (p *fakeProcess) Stdout() io.Reader { return strings.NewReader(p.run.stdout) }
func (p *fakeProcess) Stderr() io.Reader { return strings.NewReader(p.run.stderr) }
func (p *fakeProcess) Wait() error       { return p.run.waitErr }

// brokenStdoutRunner starts a tool that exits cleanly but whose stdout pipe
// fails after one line.
type brokenStdoutRunner struct{}

func (brokenStdoutRunner) Start(context.Context, Invocation) (Process, error) {
	return brokenStdoutProcess{}, nil
}

type brokenStdoutProcess struct{}

func (brokenStdoutProcess) Stdout() io.Reader {
	return io.MultiReader(
		strings.NewReader("Download SUCCEEDED: /lpp/U834567.bff\n"),
		iotest.ErrReader(errors.New("read |0: file already closed")),
	)
}
func (brokenStdoutProcess) Stderr() io.Reader { return strings.NewReader("") }
func (brokenStdoutProcess) Wait() error       { return nil }

// exitError mimics *exec.ExitError.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

// recorder captures journal entries.
type recorder struct {
	mu      sync.Mutex
	entries []recorded
}

type recorded struct {
	eventType string
	target    string
	details   map[string]any
}

func (r *recorder) Record(eventType, target string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recorded{eventType, target, details})
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, e.eventType)
	}
	return out
}

// argValue returns the value of the "-a key=value" argument of inv.
func argValue(inv Invocation, key string) string {
	for _, arg := range inv.Args {
		if v, ok := strings.CutPrefix(arg, key+"="); ok {
			return v
		}
	}
	return ""
}

func newTestRequest(t *testing.T, opts RequestOptions) *RequestConfig {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	if opts.Kind == "" {
		opts.Kind = KindSP
	}
	if opts.FromLevel == "" {
		opts.FromLevel = "7100-03"
	}
	req, err := NewRequest(opts, nil)
	require.NoError(t, err)
	return req
}

func newTestSession(t *testing.T, runner Runner, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{
		WithRunner(runner),
		WithProgress(io.Discard, 5*time.Millisecond),
	}, opts...)
	return NewSession(newTestRequest(t, RequestOptions{}), opts...)
}
