package device

import (
	"errors"
	"fmt"
)

// ErrLifecycle is wrapped by every out-of-order lifecycle call.
var ErrLifecycle = errors.New("device: lifecycle violation")

var (
	// ErrAlreadyStaged is returned by Stage when the device is not Idle.
	ErrAlreadyStaged = fmt.Errorf("%w: already staged", ErrLifecycle)

	// ErrNotStaged is returned by Unstage when the device is Idle.
	ErrNotStaged = fmt.Errorf("%w: not staged", ErrLifecycle)

	// ErrNotStagedForTrigger is returned by Trigger outside Staged/Triggered.
	ErrNotStagedForTrigger = fmt.Errorf("%w: trigger requires a staged device", ErrLifecycle)

	// ErrNoFramesCaptured is returned by Complete before any Trigger since Stage.
	ErrNoFramesCaptured = fmt.Errorf("%w: complete called before any trigger", ErrLifecycle)
)

var (
	// ErrNotTriggered is returned by Read before the first successful capture.
	ErrNotTriggered = errors.New("device: not triggered")

	// ErrCapture is returned when the capture function fails.
	ErrCapture = errors.New("device: capture failed")
)
