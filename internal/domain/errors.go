package domain

import "errors"

var (
	// ErrInvalidTransition is returned for a status change the kind's table does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorized is returned when the actor lacks the role or ownership required.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStoreUnavailable wraps record store I/O failures; the operation was not applied.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDeliveryFailed marks a notification that could not be delivered. Never returned to mutation callers.
	ErrDeliveryFailed = errors.New("delivery failed")

	ErrNotFound     = errors.New("not found")
	ErrNotTerminal  = errors.New("record is not terminal")
	ErrNoCapacity   = errors.New("listing has no available capacity")
	ErrInvalidInput = errors.New("invalid input")
)
