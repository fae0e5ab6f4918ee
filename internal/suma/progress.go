package suma

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// IsTerminalFunc reports whether a file descriptor is a terminal. Tests
// override it.
var IsTerminalFunc = term.IsTerminal

// ProgressReporter emits a status line at a fixed interval until stopped.
type ProgressReporter struct {
	interval time.Duration
	render   func(elapsed time.Duration) string
	emit     func(line string)

	start    time.Time
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartProgress emits render's line immediately, then once per interval and
// a last time when stopped.
func StartProgress(interval time.Duration, render func(elapsed time.Duration) string, emit func(line string)) *ProgressReporter {
	if interval <= 0 {
		interval = time.Second
	}
	p := &ProgressReporter{
		interval: interval,
		render:   render,
		emit:     emit,
		start:    time.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *ProgressReporter) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.emit(p.render(time.Since(p.start)))
	for {
		select {
		case <-p.stop:
			p.emit(p.render(time.Since(p.start)))
			return
		case <-ticker.C:
			p.emit(p.render(time.Since(p.start)))
		}
	}
}

// Stop halts the reporter and waits until it has emitted its final line.
// Safe to call more than once.
func (p *ProgressReporter) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// progressSink returns the emit function for status lines: on a terminal
// the line is redrawn in place, anywhere else it is logged.
func progressSink(w io.Writer) (emit func(string), finish func()) {
	if f, ok := w.(*os.File); ok && IsTerminalFunc(int(f.Fd())) {
		return func(line string) { fmt.Fprintf(f, "\033[2K\r%s", line) },
			func() { fmt.Fprintln(f) }
	}
	return func(line string) { log.Info(line) }, func() {}
}

func formatProgress(succeeded, failed, skipped int, expected Counters, elapsed time.Duration) string {
	return fmt.Sprintf("SUCCEEDED: %d/%d\tFAILED: %d/%d\tSKIPPED: %d/%d. (Total time: %s).",
		succeeded, expected.Downloaded,
		failed, expected.Failed,
		skipped, expected.Skipped,
		elapsed.Truncate(time.Second))
}
