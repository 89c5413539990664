// Package status provides Future, the settle-once completion token returned by
// every asynchronous device operation in beamcore (shutter motion, array
// capture, multi-frame completion).
//
// A Future is created pending and settled exactly once with Finish. Callers
// either block on it with Wait / WaitTimeout or register callbacks with
// AddCallback.
//
// # Timeouts
//
// A timeout on Wait is a caller-side decision only. It returns ErrTimeout but
// leaves the Future pending; the underlying operation keeps running and may
// still settle the Future later. Code that retries after ErrTimeout must
// therefore expect the first attempt to complete concurrently.
//
// # Callbacks
//
// Callbacks run synchronously on the goroutine that calls Finish, in
// registration order. They must be short and must not block.
//
// # Usage
//
//	fut, err := shutter.Set(ctx, "open")
//	if err != nil {
//	    return err // validation failure, nothing was started
//	}
//	if err := fut.WaitTimeout(5 * time.Second); err != nil {
//	    return err // motion failed, or is still in flight
//	}
package status
