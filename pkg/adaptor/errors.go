package adaptor

import (
	"errors"

	"github.com/crawlpoint/connector/pkg/wire"
)

var (
	// ErrAlreadyResponded reports a second terminal call on a Response.
	ErrAlreadyResponded = errors.New("adaptor: response already committed")

	// ErrNotInSetup reports a setter call after the response left setup.
	ErrNotInSetup = errors.New("adaptor: response is no longer in setup")
)

// transientError wraps failures the caller should retry: the repository is
// expected to come back.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a transient repository failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err}
}

// IsTransient reports whether err is worth retrying. Stream-level
// repository-unavailable declarations count as transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te) || errors.Is(err, wire.ErrRepositoryUnavailable)
}
