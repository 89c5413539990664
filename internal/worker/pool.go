// Package worker runs detached device work (shutter motions, array captures)
// on a bounded set of goroutines.
//
// Go never blocks the caller: the goroutine is started immediately and waits
// for a free slot itself. This keeps Set/Trigger calls non-blocking while still
// limiting how many hardware operations run at once.
package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is used when NewPool is given a non-positive limit.
const DefaultMaxConcurrent = 8

// Logger defines the logging interface used by the Pool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Task is a unit of detached work. A returned error is logged.
type Task func(ctx context.Context) error

// Pool bounds the number of concurrently running tasks.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger Logger
}

// NewPool creates a pool running at most maxConcurrent tasks at once.
func NewPool(maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the pool.
func (p *Pool) SetLogger(logger Logger) {
	p.logger = logger
}

// Go starts task in a new goroutine and returns immediately.
//
// The task runs with a context detached from ctx's cancellation: in-flight
// hardware operations are not cancelled when the caller goes away. Panics are
// recovered and reported to onAbort (if non-nil) so callers can settle their
// futures.
func (p *Pool) Go(ctx context.Context, name string, task Task, onAbort func(reason any)) {
	taskCtx := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(taskCtx, 1); err != nil {
			p.logger.Error("worker slot unavailable", "task", name, "error", err)
			if onAbort != nil {
				onAbort(fmt.Errorf("acquiring worker slot: %w", err))
			}
			return
		}
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker task panic recovered", "task", name, "panic", r)
				if onAbort != nil {
					onAbort(r)
				}
			}
		}()

		if err := task(taskCtx); err != nil {
			p.logger.Warn("worker task returned error", "task", name, "error", err)
		}
	}()
}

// Wait blocks until every started task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
