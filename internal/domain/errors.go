package domain

import "errors"

var (
	// ErrMalformedEvent is returned when a delivered event violates the
	// substrate contract (mismatched batch arrays, negative amounts)
	ErrMalformedEvent = errors.New("malformed transfer event")

	// ErrSubscriptionFailed is returned when subscription to events fails
	ErrSubscriptionFailed = errors.New("subscription failed")
)
