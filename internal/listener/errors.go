package listener

import "errors"

// Domain errors for the listener package.
var (
	// ErrDisabled is returned by Start when the listener is disabled in config.
	ErrDisabled = errors.New("listener: disabled in configuration")

	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("listener: already started")
)
