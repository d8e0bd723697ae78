package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrStopped     = errors.New("job runner stopped")
	ErrStopping    = errors.New("job runner stopping")
	ErrQueueFull   = errors.New("job queue full")
	ErrOverlapSkip = errors.New("job skipped: previous run still active")
	ErrCircuitOpen = errors.New("job skipped: circuit breaker open")
)

// NoRetry marks an error as permanent so the runner fails the job
// immediately instead of burning its retry budget.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
