package service

import (
	"errors"
	"fmt"
)

// Sentinel errors exposed to the API layer for status mapping.
var (
	// ErrJobNotFound indicates that the job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrWebhookNotFound indicates that the webhook config does not exist.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrInvalidUpload indicates the uploaded file was rejected before a
	// job was created (wrong extension, missing header columns).
	ErrInvalidUpload = errors.New("invalid upload")

	// ErrJobFinished indicates the job is already in a terminal state
	// and cannot be cancelled.
	ErrJobFinished = errors.New("job already finished")
)

// Error wraps service failures with the operation that produced them.
type Error struct {
	// Operation is the operation that failed (e.g., "enqueue_import").
	Operation string
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying error that caused the failure.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with operation context, passing known sentinels
// through unchanged so the API layer can match on them.
func newError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrWebhookNotFound) ||
		errors.Is(err, ErrInvalidUpload) ||
		errors.Is(err, ErrJobFinished) {
		return err
	}

	return &Error{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
