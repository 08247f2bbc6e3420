package llm

import "errors"

var (
	// ErrNoJSON reports a reply without any recognizable JSON value.
	ErrNoJSON = errors.New("no json found in reply")
	// ErrEmptyReply reports a reply that normalized to empty text.
	ErrEmptyReply = errors.New("empty llm reply")
	// ErrTimeout reports a call that exceeded its per-call timeout.
	ErrTimeout = errors.New("llm call timed out")
	// ErrUnavailable reports that no provider is configured.
	ErrUnavailable = errors.New("llm unavailable")
)

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as retryable.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as non-retryable.
func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err is marked non-retryable.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
