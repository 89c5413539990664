package stage

import "errors"

var (
	// ErrSampleNotFound is returned for an index with no saved position.
	ErrSampleNotFound = errors.New("stage: sample not found")

	// ErrInvalidSelector is returned when a selector string cannot be parsed.
	ErrInvalidSelector = errors.New("stage: invalid selector")

	// ErrUnknownAxis is returned when a position names an axis the stage
	// does not have.
	ErrUnknownAxis = errors.New("stage: unknown axis")
)
