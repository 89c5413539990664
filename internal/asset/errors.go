package asset

import "errors"

var (
	// ErrUnknownResource is returned when a datum references a resource that
	// was not registered with the same Registry.
	ErrUnknownResource = errors.New("asset: unknown resource")

	// ErrUnknownDatum is returned when a datum id is not in a Catalog.
	ErrUnknownDatum = errors.New("asset: unknown datum")

	// ErrStorageWrite is returned when a payload cannot be persisted.
	ErrStorageWrite = errors.New("asset: storage write failed")

	// ErrInvalidArray is returned when an array's shape does not match its data.
	ErrInvalidArray = errors.New("asset: invalid array")

	// ErrUnsupportedFormat is returned when a stored payload cannot be decoded.
	ErrUnsupportedFormat = errors.New("asset: unsupported format")
)
