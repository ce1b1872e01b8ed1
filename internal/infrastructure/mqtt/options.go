package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"os"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	operationTimeout  = 5 * time.Second
	keepAlive         = 60 * time.Second
	disconnectQuiesce = 1000 // milliseconds

	maxQoS = 2

	// statusQoS is used for the retained status and the Last Will so a
	// crash is always visible to late subscribers.
	statusQoS = 1

	// clientIDPrefix is combined with the hostname when mqtt.broker.client_id is unset.
	clientIDPrefix = "dtu-ingest-"
)

// Status values published on dtu/system/status.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonCrash    = "unexpected_disconnect"
	reasonShutdown = "graceful_shutdown"
)

// statusMessage is the retained payload on dtu/system/status.
type statusMessage struct {
	Status     string    `json:"status"`
	ClientID   string    `json:"client_id"`
	Reason     string    `json:"reason,omitempty"`
	FrameTopic string    `json:"frame_topic"`
	Timestamp  time.Time `json:"timestamp"`
}

func statusPayload(status, clientID, reason string) []byte {
	b, _ := json.Marshal(statusMessage{ //nolint:errcheck // fixed struct of strings and a time
		Status:     status,
		ClientID:   clientID,
		Reason:     reason,
		FrameTopic: Topics{}.AllFrames(),
		Timestamp:  time.Now().UTC(),
	})
	return b
}

// resolveClientID returns the configured client ID, or one derived from the
// hostname so that two ingest instances never share a broker session.
func resolveClientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = strconv.Itoa(os.Getpid())
	}
	return clientIDPrefix + host
}

// brokerURL builds tcp:// or ssl:// from the broker config.
func brokerURL(cfg config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// clientOptions builds the paho options for the ingest client: clean
// session with the frame subscription restored on every connect,
// reconnect backoff from mqtt.reconnect, and a retained offline Last Will.
func clientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetBinaryWill(Topics{}.SystemStatus(), statusPayload(statusOffline, clientID, reasonCrash), statusQoS, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}
