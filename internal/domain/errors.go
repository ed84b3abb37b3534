// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTransition is returned when a job status transition would
	// move a job out of a terminal state or otherwise violate the
	// monotonic status machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidJobStatus is returned when a job status is not valid.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrInvalidOutcome is returned when a row outcome value is not valid.
	ErrInvalidOutcome = errors.New("invalid row outcome")

	// ErrInvalidEventType is returned when a webhook event type is not
	// one of the known event types.
	ErrInvalidEventType = errors.New("invalid event type")
)
