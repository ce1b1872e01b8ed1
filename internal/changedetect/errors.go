package changedetect

import "errors"

// Domain errors for the changedetect package.
var (
	// ErrCacheUnavailable is returned when the fingerprint store cannot be
	// reached. Evaluate still returns a FirstSeen result alongside it.
	ErrCacheUnavailable = errors.New("changedetect: cache unavailable")

	// ErrInvalidEntry is returned when a cache write lacks a row ID.
	ErrInvalidEntry = errors.New("changedetect: invalid cache entry")
)
