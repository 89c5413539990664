package shutter

import "errors"

// Sentinel errors for shutter operations.
var (
	// ErrAlreadyMoving is returned by Set while a motion is in flight.
	ErrAlreadyMoving = errors.New("shutter: already moving")

	// ErrInvalidTarget is returned by Set for a target outside the synonym lists.
	ErrInvalidTarget = errors.New("shutter: invalid target")

	// ErrSynonymConflict is returned by Set when a word is both an open and a
	// close synonym.
	ErrSynonymConflict = errors.New("shutter: synonym lists overlap")

	// ErrMotion wraps failures of the actuator hook.
	ErrMotion = errors.New("shutter: motion failed")
)
