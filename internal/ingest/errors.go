package ingest

import "errors"

// Domain errors for the ingest package.
var (
	// ErrPersistenceFailure is returned when the snapshot store rejects a
	// write. The frame is dropped and the cache is left untouched.
	ErrPersistenceFailure = errors.New("ingest: persistence failure")

	// ErrFrameTimeout is returned when a frame does not finish within the
	// configured per-frame timeout.
	ErrFrameTimeout = errors.New("ingest: frame timed out")

	// ErrProcessorClosed is returned by Submit after Close.
	ErrProcessorClosed = errors.New("ingest: processor closed")
)
