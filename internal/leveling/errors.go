package leveling

import "errors"

var (
	// ErrControlLoop is returned when a sensor read or actuator move fails.
	// The loop stops at the failure; the partial Report is still returned.
	ErrControlLoop = errors.New("leveling: control loop aborted")

	// ErrInvalidParams is returned for parameters that cannot converge.
	ErrInvalidParams = errors.New("leveling: invalid parameters")
)
