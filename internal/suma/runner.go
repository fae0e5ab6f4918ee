package suma

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
)

// Runner starts the tool. Sessions never touch OS processes directly.
type Runner interface {
	Start(ctx context.Context, inv Invocation) (Process, error)
}

// Process is a started tool invocation.
type Process interface {
	// Stdout streams standard output until the tool closes it.
	Stdout() io.Reader
	// Stderr returns everything the tool wrote to standard error. It blocks
	// until the stream is closed, so call it after Stdout is drained.
	Stderr() io.Reader
	// Wait waits for the tool to exit. A non-nil error means the exit
	// status was not success.
	Wait() error
}

// ExecRunner runs the tool as a child process in its own process group.
// Cancelling the context kills the whole group.
type ExecRunner struct{}

func (ExecRunner) Start(ctx context.Context, inv Invocation) (Process, error) {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Env = inv.Env
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{
		cmd:        cmd,
		stdout:     stdout,
		stderrDone: make(chan struct{}),
	}
	// stderr is drained concurrently so a chatty stderr never blocks stdout.
	go func() {
		defer close(p.stderrDone)
		_, _ = io.Copy(&p.stderr, stderr)
	}()

	return p, nil
}

type execProcess struct {
	cmd        *exec.Cmd
	stdout     io.Reader
	stderr     bytes.Buffer
	stderrDone chan struct{}
	waitOnce   sync.Once
	waitErr    error
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Stderr() io.Reader {
	<-p.stderrDone
	return bytes.NewReader(p.stderr.Bytes())
}

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		// Wait closes the pipes, so every read must be finished first.
		_, _ = io.Copy(io.Discard, p.stdout)
		<-p.stderrDone
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}
