package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Logger is the subset of logging.Logger the client uses.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the readings sink. Points are batched by the library and
// written in the background; write failures are logged, never returned.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig
	logger   Logger

	mu     sync.RWMutex
	closed bool
}

// Connect pings the server and opens the batched write API for the
// configured org and bucket.
//
// Parameters:
//   - cfg: InfluxDB configuration from config.yaml
//   - logger: Receives asynchronous write failures; may be nil
//
// Returns:
//   - *Client: Client ready for WriteReadings
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the ping result
func Connect(cfg config.InfluxDBConfig, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))
	c := &Client{client: client, cfg: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 2*pingTimeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c.writeAPI = client.WriteAPI(cfg.Org, cfg.Bucket)
	go c.logWriteErrors(c.writeAPI.Errors())
	return c, nil
}

// clientOptions maps influxdb.batch_size and influxdb.flush_interval
// (seconds) onto the library's batching options. Non-positive values
// fall back to 100 points and 10s.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	interval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		interval = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(interval.Milliseconds())) // #nosec G115 -- positive by construction
}

// logWriteErrors runs until the write API is closed.
func (c *Client) logWriteErrors(errs <-chan error) {
	for err := range errs {
		c.logger.Error("InfluxDB readings batch dropped",
			"bucket", c.cfg.Bucket,
			"error", fmt.Errorf("%w: %w", ErrWriteFailed, err),
		)
	}
}

func (c *Client) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}

// Flush blocks until every buffered point has been sent. It is called
// once the ingest pipeline has drained so the last readings are not held
// until Close. It is a no-op after Close.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.writeAPI == nil {
		return
	}
	c.writeAPI.Flush()
	c.logger.Info("InfluxDB readings flushed", "bucket", c.cfg.Bucket)
}

// Close flushes pending points and releases the client. Calling Close
// more than once, or on a zero Client, is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.client == nil {
		return nil
	}
	c.closed = true
	if c.writeAPI != nil {
		c.writeAPI.Flush()
	}
	c.client.Close()
	return nil
}

// HealthCheck pings the server; it fails fast with ErrNotConnected after Close.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.ping(ctx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.client != nil
}
