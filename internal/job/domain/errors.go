package domain

import "errors"

var (
	// ErrRunNotFound is returned when a job run cannot be found
	ErrRunNotFound = errors.New("job run not found")

	// ErrConcurrentRunsExceeded is returned when the job already has its
	// maximum number of active runs
	ErrConcurrentRunsExceeded = errors.New("concurrent runs exceeded")

	// ErrRunAlreadyClaimed is returned when attempting to claim a run that is not STARTING
	ErrRunAlreadyClaimed = errors.New("job run already claimed or not in STARTING state")

	// ErrRunNotActive is returned when completing or stopping a run that already finished
	ErrRunNotActive = errors.New("job run is not active")

	// ErrJobNotFound is returned for runs of a job that is not defined
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidArguments is returned when run arguments are missing or malformed
	ErrInvalidArguments = errors.New("invalid job arguments")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
