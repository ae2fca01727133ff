package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAuth indicates missing or rejected credentials
	ErrAuth = errors.New("authentication failed")

	// ErrMalformedRecord indicates an input record missing required fields
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDuplicatePlay indicates a play that already exists for its
	// (track, timestamp) pair
	ErrDuplicatePlay = errors.New("duplicate play")

	// ErrLimitReached signals that an ingestion limit was hit; it marks a
	// stopping condition, not a failure
	ErrLimitReached = errors.New("record limit reached")
)
