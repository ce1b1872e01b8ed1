package mqtt

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotConnected means the broker connection is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed wraps the reason the first connect attempt failed.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed wraps publish timeouts, broker errors and oversize payloads.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps failures to add or remove the frame subscription.
	ErrSubscribeFailed = errors.New("mqtt: frame subscription failed")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic rejects empty topics and messages outside dtu/frame/{id}.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrEmptyFrame rejects frame messages without a payload.
	ErrEmptyFrame = errors.New("mqtt: empty frame payload")
)
