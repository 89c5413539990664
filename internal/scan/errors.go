package scan

import "errors"

var (
	// ErrInvalidGrid is returned for a grid axis with a non-positive step or
	// an empty range.
	ErrInvalidGrid = errors.New("scan: invalid grid")

	// ErrPinOutOfRange is returned by PinAxis when the pin lies outside the axis.
	ErrPinOutOfRange = errors.New("scan: pin outside grid range")

	// ErrUnknownAxis is returned by Runner for a point naming an axis it
	// cannot move.
	ErrUnknownAxis = errors.New("scan: unknown axis")
)
