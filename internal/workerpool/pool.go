package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/breeze-rmm/suma-sync/internal/logging"
)

var log = logging.L("workerpool")

// ErrClosed is returned when submitting to a pool that is shutting down.
var ErrClosed = errors.New("worker pool is closed")

// Task is a unit of work submitted to the pool.
type Task func() error

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue and
// collects the errors they return.
type Pool struct {
	queue chan Task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error

	closeOnce sync.Once
}

// New creates a pool with maxWorkers goroutines and a task queue of queueSize.
func New(maxWorkers, queueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{queue: make(chan Task, queueSize)}
	p.wg.Add(maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "workers", maxWorkers, "queueSize", queueSize)
	return p
}

// Submit enqueues task, waiting for queue space until ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish, or for ctx to be done. It returns the task errors joined, or the
// context error if the wait was cut short.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("worker pool drain timed out")
		return ctx.Err()
	}

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.errs...)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		if err := p.runTask(task); err != nil {
			p.errMu.Lock()
			p.errs = append(p.errs, err)
			p.errMu.Unlock()
		}
	}
}

// runTask executes a single task, turning a panic into an error.
func (p *Pool) runTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task()
}
