package domain

import "errors"

var (
	// ErrNotFound is returned by stores when no document exists for a key.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by stores when a conditional write loses
	// against a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInvalidPayload is returned when an event's data fails validation.
	ErrInvalidPayload = errors.New("invalid payload")
)
