package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the DTU ingest service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Listener ListenerConfig `yaml:"listener"`
	Ingest   IngestConfig   `yaml:"ingest"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// CacheConfig contains settings for the change-detection cache (Redis).
type CacheConfig struct {
	// Enabled selects Redis. When false an in-process TTL map is used,
	// which loses all fingerprints on restart.
	Enabled bool `yaml:"enabled"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix is prepended to every device message ID to form the cache key.
	KeyPrefix string `yaml:"key_prefix"`

	// TTLDays is the cache horizon. Entries untouched for this long expire.
	TTLDays int `yaml:"ttl_days"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// ListenerConfig contains the TCP frame listener settings.
type ListenerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// MaxFrameSize bounds a single length-prefixed frame (bytes).
	MaxFrameSize int `yaml:"max_frame_size"`

	// ReadTimeout closes connections that stay silent for longer than this.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// MaxFramesPerSecond limits frames accepted per connection. 0 disables the limit.
	MaxFramesPerSecond float64 `yaml:"max_frames_per_second"`

	// MaxConnections bounds concurrently accepted device connections.
	MaxConnections int `yaml:"max_connections"`
}

// IngestConfig contains frame processing settings.
type IngestConfig struct {
	// FrameTimeout bounds the cache and store I/O of a single frame.
	FrameTimeout time.Duration `yaml:"frame_timeout"`

	// MaxInFlight bounds the number of frames processed concurrently.
	MaxInFlight int `yaml:"max_in_flight"`

	// StoreFallback consults the snapshot store's current row when the
	// cache is unavailable, instead of treating every frame as first seen.
	StoreFallback bool `yaml:"store_fallback"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains the inspection HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// An empty Path disables file logging.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load builds the configuration from defaults, then the YAML file at path,
// then DTU_* environment variables, and validates the result.
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read, parse, environment or validation failure
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/dtu.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Cache: CacheConfig{
			Enabled:      true,
			Host:         "localhost",
			Port:         6379,
			KeyPrefix:    "dtu:device:",
			TTLDays:      7,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
			PoolSize:     32,
		},
		Listener: ListenerConfig{
			Enabled:            true,
			Host:               "0.0.0.0",
			Port:               9090,
			MaxFrameSize:       4096,
			ReadTimeout:        5 * time.Minute,
			MaxFramesPerSecond: 20,
			MaxConnections:     1024,
		},
		Ingest: IngestConfig{
			FrameTimeout:  5 * time.Second,
			MaxInFlight:   256,
			StoreFallback: true,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     30,
				Compress:   true,
			},
		},
	}
}

// envVar binds one DTU_* variable to a config field.
type envVar struct {
	name string
	set  func(cfg *Config, v string) error
}

func envString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func envInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		*field(cfg) = n
		return nil
	}
}

func envBool(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
		*field(cfg) = b
		return nil
	}
}

// envVars lists the supported overrides. Secrets are expected to arrive
// this way rather than through config.yaml.
var envVars = []envVar{
	{"DTU_DATABASE_PATH", envString(func(c *Config) *string { return &c.Database.Path })},
	{"DTU_CACHE_ENABLED", envBool(func(c *Config) *bool { return &c.Cache.Enabled })},
	{"DTU_CACHE_HOST", envString(func(c *Config) *string { return &c.Cache.Host })},
	{"DTU_CACHE_PORT", envInt(func(c *Config) *int { return &c.Cache.Port })},
	{"DTU_CACHE_PASSWORD", envString(func(c *Config) *string { return &c.Cache.Password })},
	{"DTU_LISTENER_PORT", envInt(func(c *Config) *int { return &c.Listener.Port })},
	{"DTU_MQTT_ENABLED", envBool(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"DTU_MQTT_HOST", envString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"DTU_MQTT_PORT", envInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"DTU_MQTT_CLIENT_ID", envString(func(c *Config) *string { return &c.MQTT.Broker.ClientID })},
	{"DTU_MQTT_USERNAME", envString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"DTU_MQTT_PASSWORD", envString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"DTU_API_HOST", envString(func(c *Config) *string { return &c.API.Host })},
	{"DTU_API_PORT", envInt(func(c *Config) *int { return &c.API.Port })},
	{"DTU_INFLUXDB_URL", envString(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"DTU_INFLUXDB_TOKEN", envString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"DTU_LOG_LEVEL", envString(func(c *Config) *string { return &c.Logging.Level })},
}

// applyEnv applies every set, non-empty DTU_* variable in envVars. A
// malformed number or boolean is an error rather than silently ignored.
func applyEnv(cfg *Config) error {
	var errs []string
	for _, ev := range envVars {
		v := os.Getenv(ev.name)
		if v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			errs = append(errs, ev.name+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Cache.TTLDays < 1 {
		errs = append(errs, "cache.ttl_days must be at least 1")
	}
	if c.Cache.Enabled {
		if c.Cache.Host == "" {
			errs = append(errs, "cache.host is required when cache is enabled")
		}
		if c.Cache.Port < 1 || c.Cache.Port > 65535 {
			errs = append(errs, "cache.port must be between 1 and 65535")
		}
	}

	if c.Listener.Enabled {
		if c.Listener.Port < 1 || c.Listener.Port > 65535 {
			errs = append(errs, "listener.port must be between 1 and 65535")
		}
		if c.Listener.MaxFrameSize < 16 || c.Listener.MaxFrameSize > 65535 {
			errs = append(errs, "listener.max_frame_size must be between 16 and 65535")
		}
		if c.Listener.MaxFramesPerSecond < 0 {
			errs = append(errs, "listener.max_frames_per_second must not be negative")
		}
	}

	if c.Ingest.FrameTimeout <= 0 {
		errs = append(errs, "ingest.frame_timeout must be positive")
	}
	if c.Ingest.MaxInFlight < 1 {
		errs = append(errs, "ingest.max_in_flight must be at least 1")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CacheTTL returns the cache horizon as a Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLDays) * 24 * time.Hour
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
