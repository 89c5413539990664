package channel

import "errors"

var (
	// ErrUnavailable is returned when a channel cannot be reached or has
	// never published a value.
	ErrUnavailable = errors.New("channel: unavailable")

	// ErrTimeout is returned when a read does not get a value in time.
	ErrTimeout = errors.New("channel: read timed out")
)
