package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Callback is invoked once when a Future settles.
type Callback func(success bool, err error)

// Future is a settle-once completion token for an in-flight operation.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Finish may be called from any goroutine; callbacks run on that goroutine.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	success   bool
	err       error
	callbacks []Callback
}

// New returns a pending Future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Finished returns a Future that is already settled successfully.
func Finished() *Future {
	f := New()
	_ = f.Finish(true, nil) //nolint:errcheck // fresh future cannot be settled
	return f
}

// Failed returns a Future that is already settled with err.
func Failed(err error) *Future {
	f := New()
	_ = f.Finish(false, err) //nolint:errcheck // fresh future cannot be settled
	return f
}

// Finish settles the Future and runs all registered callbacks in registration
// order. A failed outcome without an error is recorded as ErrFailed.
//
// Returns ErrAlreadySettled if the Future was settled before; the stored
// outcome is left unchanged in that case.
func (f *Future) Finish(success bool, err error) error {
	if !success && err == nil {
		err = ErrFailed
	}
	if success {
		err = nil
	}

	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return ErrAlreadySettled
	}
	f.settled = true
	f.success = success
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(success, err)
	}
	return nil
}

// AddCallback registers cb to run when the Future settles. If the Future is
// already settled, cb runs immediately on the calling goroutine.
func (f *Future) AddCallback(cb Callback) {
	if cb == nil {
		return
	}

	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	success, err := f.success, f.err
	f.mu.Unlock()

	cb(success, err)
}

// Wait blocks until the Future settles or ctx is done.
//
// Returns:
//   - nil if the operation succeeded
//   - the stored error if it failed
//   - an error wrapping ErrTimeout if ctx ended first (the Future stays pending)
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// WaitTimeout is Wait with a fixed timeout. A timeout <= 0 waits forever.
func (f *Future) WaitTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return f.Wait(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := f.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: after %v", ErrTimeout, timeout)
	}
	return err
}

// Done reports whether the Future has settled.
func (f *Future) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Success reports whether the Future settled successfully.
// It returns false while the Future is pending.
func (f *Future) Success() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled && f.success
}

// Err returns the stored error, or nil if pending or successful.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// DoneChan returns a channel closed when the Future settles.
func (f *Future) DoneChan() <-chan struct{} {
	return f.done
}
