// Package background runs fire-and-forget tasks, chiefly the completion
// fetches that upgrade partial cache entries to full ones.
//
// Tasks are tracked in a bounded registry so shutdown can drain them instead
// of abandoning untracked goroutines. They run on a context detached from
// any request: the caller has already been answered by the time a task runs.
package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrSaturated is returned by Spawn when the registry is full.
var ErrSaturated = errors.New("background runner saturated")

// ErrShuttingDown is returned by Spawn after Shutdown has begun.
var ErrShuttingDown = errors.New("background runner shutting down")

// Runner owns background tasks for one process.
type Runner struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	inFlight int
	limit    int
	closed   bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
}

// NewRunner creates a Runner that admits at most limit concurrent tasks.
func NewRunner(limit int, logger *slog.Logger) *Runner {
	if limit <= 0 {
		limit = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Runner{
		limit:   limit,
		baseCtx: baseCtx,
		cancel:  cancel,
		logger:  logger.With("component", "background"),
	}
}

// Spawn starts fn on a detached context. Task failures are fn's own
// business: a background task logs and swallows its errors, because there is
// no request left to report them to.
func (runner *Runner) Spawn(name string, fn func(ctx context.Context)) error {
	runner.mu.Lock()
	if runner.closed {
		runner.mu.Unlock()
		return ErrShuttingDown
	}
	if runner.inFlight >= runner.limit {
		runner.mu.Unlock()
		runner.logger.Warn("task rejected", "task", name, "limit", runner.limit)
		return ErrSaturated
	}
	runner.inFlight++
	runner.wg.Add(1)
	runner.mu.Unlock()

	go func() {
		defer func() {
			runner.mu.Lock()
			runner.inFlight--
			runner.mu.Unlock()
			runner.wg.Done()
		}()
		runner.logger.Debug("task started", "task", name)
		fn(runner.baseCtx)
		runner.logger.Debug("task finished", "task", name)
	}()
	return nil
}

// InFlight reports how many tasks are currently running.
func (runner *Runner) InFlight() int {
	runner.mu.Lock()
	defer runner.mu.Unlock()
	return runner.inFlight
}

// Shutdown stops admitting tasks and waits for running ones to finish. When
// ctx expires first, remaining tasks are canceled through their context.
func (runner *Runner) Shutdown(ctx context.Context) error {
	runner.mu.Lock()
	runner.closed = true
	runner.mu.Unlock()

	done := make(chan struct{})
	go func() {
		runner.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		runner.cancel()
		return nil
	case <-ctx.Done():
		runner.cancel()
		<-done
		return ctx.Err()
	}
}
