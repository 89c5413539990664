package status

import "errors"

// Sentinel errors for Future operations.
var (
	// ErrAlreadySettled is returned when Finish is called on a settled Future.
	ErrAlreadySettled = errors.New("status: already settled")

	// ErrTimeout is returned when Wait gives up before the Future settles.
	// The Future is not settled by the timeout.
	ErrTimeout = errors.New("status: wait timed out")

	// ErrFailed is stored when an operation fails without a specific error.
	ErrFailed = errors.New("status: operation failed")
)
