package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// FrameHandler receives one raw frame from the MQTT frame source.
type FrameHandler func(deviceMessageID string, frame []byte) error

type frameSubscription struct {
	qos     byte
	handler FrameHandler
}

// SubscribeFrames subscribes to dtu/frame/+ and passes every payload to
// handler as one frame. The subscription is restored after a reconnect.
// Messages on topics that do not name a device, or without a payload,
// are logged and never reach handler.
//
// Parameters:
//   - qos: Maximum QoS level for received frames
//   - handler: Called once per frame on a paho goroutine; errors are logged
//
// Returns:
//   - error: ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) SubscribeFrames(qos byte, handler FrameHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := &frameSubscription{qos: qos, handler: handler}
	if err := c.subscribe(sub); err != nil {
		return err
	}

	c.mu.Lock()
	c.frames = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeFrames stops the frame source. Frames already handed to paho
// may still be delivered. It is a no-op when no subscription exists or the
// broker is unreachable.
func (c *Client) UnsubscribeFrames() error {
	c.mu.Lock()
	had := c.frames != nil
	c.frames = nil
	c.mu.Unlock()

	if !had || !c.IsConnected() {
		return nil
	}

	token := c.paho.Unsubscribe(Topics{}.AllFrames())
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: unsubscribe timed out after %v", ErrSubscribeFailed, operationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: unsubscribe: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *Client) frameSubscription() *frameSubscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

func (c *Client) subscribe(sub *frameSubscription) error {
	token := c.paho.Subscribe(Topics{}.AllFrames(), sub.qos, c.frameCallback(sub.handler))
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: timed out after %v", ErrSubscribeFailed, operationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// frameCallback adapts handler to paho, recovering panics so one bad
// frame cannot kill paho's delivery goroutine.
func (c *Client) frameCallback(handler FrameHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("MQTT frame handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := deliverFrame(handler, msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("MQTT frame not accepted",
				"topic", msg.Topic(),
				"bytes", len(msg.Payload()),
				"error", err,
			)
		}
	}
}

func deliverFrame(handler FrameHandler, topic string, payload []byte) error {
	id, ok := Topics{}.FrameDevice(topic)
	if !ok {
		return fmt.Errorf("%w: %q is not a frame topic", ErrInvalidTopic, topic)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w on %s", ErrEmptyFrame, topic)
	}
	return handler(id, payload)
}
