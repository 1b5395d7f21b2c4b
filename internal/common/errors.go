package common

import "errors"

// Error taxonomy for delivery outcomes. Callers classify failures with
// errors.Is; wrapped detail carries the underlying cause.
var (
	// ErrValidation marks a bad submission, rejected synchronously and never retried.
	ErrValidation = errors.New("validation error")

	// ErrTransient marks a delivery failure worth retrying (network error, gateway 5xx).
	ErrTransient = errors.New("transient delivery error")

	// ErrPermanent marks a delivery failure that must not be retried for
	// that device (invalid token); other devices are still attempted.
	ErrPermanent = errors.New("permanent delivery error")

	// ErrExhausted marks an attempt whose retry budget is spent.
	ErrExhausted = errors.New("retries exhausted")

	// ErrStorage marks a durable-store failure. Losing a delivery record is
	// worse than losing the notification, so it is surfaced, never swallowed.
	ErrStorage = errors.New("storage error")
)
