package metadata

import "errors"

var (
	// ErrNilKey is returned when an empty key is added.
	ErrNilKey = errors.New("metadata: empty key")

	// ErrNilValue is returned when a nil value set is supplied.
	ErrNilValue = errors.New("metadata: nil value")

	// ErrFrozen is returned when mutating a frozen instance.
	ErrFrozen = errors.New("metadata: instance is frozen")
)
