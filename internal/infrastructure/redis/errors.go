package redis

import "errors"

var (
	// ErrDisabled is returned by Open when cache.enabled is false.
	ErrDisabled = errors.New("redis: cache disabled in configuration")

	// ErrUnreachable means the startup ping failed. Open still returns a
	// usable client alongside it.
	ErrUnreachable = errors.New("redis: cache unreachable at startup")
)
