package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the broker connection of the ingest service. It carries the
// optional dtu/frame/+ frame source and publishes change events.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	paho     pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string
	logger   Logger

	mu        sync.RWMutex
	connected bool
	frames    *frameSubscription
}

// Connect dials the broker and waits up to 10s for the session.
//
// On every (re)connect the client publishes a retained online status on
// dtu/system/status and restores the frame subscription. The broker
// publishes the retained offline Last Will if the process dies.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - logger: Receives connection and frame handling events; may be nil
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed wrapping the timeout or broker error
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	c := newClient(cfg, logger)

	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: no CONNACK from %s within %v", ErrConnectionFailed, brokerURL(cfg.Broker), connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// onConnect runs asynchronously and may not have fired yet.
	c.setConnected(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, logger Logger) *Client {
	if logger == nil {
		logger = noopLogger{}
	}
	c := &Client{
		cfg:      cfg,
		clientID: resolveClientID(cfg),
		logger:   logger,
	}

	opts := clientOptions(cfg, c.clientID).
		SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.logger.Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker), "client_id", c.clientID)
		})
	c.paho = pahomqtt.NewClient(opts)
	return c
}

// onConnect restores the frame subscription and announces the service.
func (c *Client) onConnect() {
	c.setConnected(true)

	subscriptions := 0
	if sub := c.frameSubscription(); sub != nil {
		if err := c.subscribe(sub); err != nil {
			c.logger.Error("restoring MQTT frame subscription failed",
				"frame_topic", Topics{}.AllFrames(),
				"error", err,
			)
		} else {
			subscriptions = 1
		}
	}

	c.paho.Publish(Topics{}.SystemStatus(), statusQoS, true, statusPayload(statusOnline, c.clientID, ""))

	c.logger.Info("MQTT connected",
		"broker", brokerURL(c.cfg.Broker),
		"client_id", c.clientID,
		"subscriptions", subscriptions,
		"frame_topic", Topics{}.AllFrames(),
	)
}

func (c *Client) onConnectionLost(err error) {
	c.setConnected(false)
	c.logger.Warn("MQTT connection lost",
		"broker", brokerURL(c.cfg.Broker),
		"frames_subscribed", c.frameSubscription() != nil,
		"error", err,
	)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Close publishes a retained graceful offline status and disconnects.
// Calling Close on an unconnected client is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.SystemStatus(), statusQoS, true, statusPayload(statusOffline, c.clientID, reasonShutdown))
		token.WaitTimeout(operationTimeout)
	}
	c.paho.Disconnect(disconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho != nil && c.paho.IsConnected()
}

// QoS returns the configured QoS for frames and change events.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// ClientID returns the broker client ID in use.
func (c *Client) ClientID() string {
	return c.clientID
}
