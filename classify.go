package eventflow

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"syscall"
)

// Classification tells the dead letter queue whether redelivery can help.
type Classification int

const (
	// Retryable failures are expected to clear on a later attempt:
	// timeouts, connection resets, resource exhaustion.
	Retryable Classification = iota

	// Permanent failures will fail the same way every time: malformed
	// payloads, validation errors, unknown event types.
	Permanent
)

func (c Classification) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// transientError and permanentError carry an explicit classification chosen
// by the code that produced the failure.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient marks err as retryable regardless of its underlying type.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// PermanentErr marks err as non-retryable regardless of its underlying type.
func PermanentErr(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Classify decides whether a handler failure is worth retrying. Explicit
// markers win; otherwise network and timeout errors are retryable while
// serialization and validation errors are not. Unknown errors default to
// retryable so that an unrecognized infrastructure hiccup is not parked on
// its first failure.
func Classify(err error) Classification {
	if err == nil {
		return Permanent
	}

	var pe *permanentError
	if errors.As(err, &pe) {
		return Permanent
	}
	var te *transientError
	if errors.As(err, &te) {
		return Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}
	if errors.Is(err, context.Canceled) {
		return Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrDeadlineExceeded) {
		return Retryable
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return Permanent
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Permanent
	}
	var skipped *ErrSkippedEvent
	if errors.As(err, &skipped) {
		return Permanent
	}

	return Retryable
}
