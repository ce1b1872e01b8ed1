package frame

import "errors"

// Domain errors for the frame package.
var (
	// ErrMalformedFrame is returned when a frame body cannot be decoded.
	// It is local to one frame: the connection carrying it stays usable.
	ErrMalformedFrame = errors.New("frame: malformed frame")

	// ErrFrameDesync is returned when the stream length prefix is zero or
	// exceeds the buffer. Frame boundaries are lost and the connection
	// must be closed.
	ErrFrameDesync = errors.New("frame: stream desynchronised")

	// ErrEncodingFailed is returned when a Message cannot be represented
	// in the wire format.
	ErrEncodingFailed = errors.New("frame: encoding failed")
)
