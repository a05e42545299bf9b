package wire

import "errors"

var (
	// ErrBadDelimiter reports a delimiter that violates the framing rules.
	ErrBadDelimiter = errors.New("wire: invalid delimiter")

	// ErrBadHeader reports a stream whose first line is not a valid version
	// header.
	ErrBadHeader = errors.New("wire: invalid stream header")

	// ErrMalformedStream reports a stream that violates command ordering or
	// encoding rules.
	ErrMalformedStream = errors.New("wire: malformed stream")

	// ErrRepositoryUnavailable is returned when the remote side declares the
	// repository unavailable. It is a transient condition; callers retry.
	ErrRepositoryUnavailable = errors.New("wire: repository unavailable")
)
