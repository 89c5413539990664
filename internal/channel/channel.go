package channel

import (
	"context"
	"time"
)

// ReadbackSuffix is appended to a setpoint name to form its readback channel.
const ReadbackSuffix = ".RBV"

// IO reads and writes named control-system channels.
//
// Implementations must be safe for concurrent use.
type IO interface {
	Read(ctx context.Context, name string) (float64, error)
	Write(ctx context.Context, name string, value float64) error
}

// Clock supplies wall-clock timestamps for readings.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Readback returns the readback channel name for a setpoint channel.
func Readback(name string) string {
	return name + ReadbackSuffix
}
