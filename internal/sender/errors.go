package sender

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionInvalid means the logged-in messaging session is gone and
// no further send can succeed until an operator re-authenticates.
var ErrSessionInvalid = errors.New("messaging session invalid")

// TransientError wraps a failure worth retrying, such as a timeout or
// a page that did not settle.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Transientf builds a retryable error from a format string.
func Transientf(op, format string, args ...any) error {
	return &TransientError{Op: op, Err: fmt.Errorf(format, args...)}
}

// PermanentError wraps a failure no retry can fix, such as a malformed
// recipient. The job is recorded and the run moves on.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not retryable.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// IsTransient reports whether err is worth retrying. Session loss and
// context cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is a per-job failure that no retry
// can fix.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsFatal reports whether err must stop the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionInvalid) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
