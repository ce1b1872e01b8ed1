// DTU ingest service.
//
// This is the main entry point for the DTU telemetry ingest service. It
// accepts length-prefixed telemetry frames from data transfer units over
// TCP (and optionally MQTT), decodes them into device snapshots, and
// persists a snapshot only when a device's warning state changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-dtu/migrations"

	"github.com/nerrad567/gray-logic-dtu/internal/api"
	"github.com/nerrad567/gray-logic-dtu/internal/changedetect"
	"github.com/nerrad567/gray-logic-dtu/internal/device"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/redis"
	"github.com/nerrad567/gray-logic-dtu/internal/ingest"
	"github.com/nerrad567/gray-logic-dtu/internal/listener"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "DTU_CONFIG"

	// shutdownTimeout bounds the drain of in-flight frames on exit.
	shutdownTimeout = 15 * time.Second

	// sweepInterval is how often the in-process cache drops expired entries.
	sweepInterval = time.Hour
)

// options are the command-line flags.
type options struct {
	configPath        string
	envFile           string
	showVersion       bool
	rollbackMigration bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command-line arguments.
func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("dtuingest", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (overrides "+configEnvVar+")")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config (ignored if missing)")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")
	flags.BoolVar(&opts.rollbackMigration, "rollback-migration", false, "revert the newest schema migration and exit")
	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if opts.showVersion {
		fmt.Printf("dtuingest %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	if envErr := loadEnvFile(opts.envFile); envErr != nil {
		return envErr
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting DTU ingest",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // best-effort flush of the log file on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if opts.rollbackMigration {
		reverted, rollbackErr := db.Rollback(ctx)
		if rollbackErr != nil {
			return fmt.Errorf("rolling back migration: %w", rollbackErr)
		}
		log.Info("schema migration rolled back", "version", reverted)
		return nil
	}

	applied, migrateErr := db.Migrate(ctx)
	if migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	schemaVersion, err := db.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Info("database migrations complete", "applied", applied, "schema_version", schemaVersion)

	store := device.NewSQLiteSnapshotStore(db.DB)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, "snapshots"),
	)

	// Change-detection cache
	cacheStore, closeCache := openCache(ctx, cfg.Cache, log.Component("cache"), reg)
	defer closeCache()

	detector := changedetect.NewDetector(cacheStore, changedetect.Config{
		KeyPrefix: cfg.Cache.KeyPrefix,
		TTL:       cfg.CacheTTL(),
	})
	detector.SetLogger(log.Component("changedetect"))

	metrics := ingest.NewMetrics(reg)

	executor := ingest.NewExecutor(store, detector)
	executor.SetLogger(log.Component("executor"))
	executor.SetMetrics(metrics)

	registry := device.NewRegistry()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, log.Component("influxdb"))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.Component("mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	processor := ingest.NewProcessor(ingest.Config{
		FrameTimeout:  cfg.Ingest.FrameTimeout,
		MaxInFlight:   cfg.Ingest.MaxInFlight,
		StoreFallback: cfg.Ingest.StoreFallback,
	}, registry, detector, executor)
	processor.SetLogger(log.Component("ingest"))
	processor.SetMetrics(metrics)
	if influxClient != nil {
		processor.SetReadingsSink(influxClient)
	}
	if mqttClient != nil {
		processor.SetEventPublisher(ingest.NewMQTTEvents(mqttClient, mqttClient.QoS()))
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("draining in-flight frames")
		if closeErr := processor.Close(drainCtx); closeErr != nil {
			log.Error("error draining frames", "error", closeErr)
		}
		if influxClient != nil {
			influxClient.Flush()
		}
	}()

	// Frame sources
	if mqttClient != nil {
		subErr := mqttClient.SubscribeFrames(mqttClient.QoS(), func(_ string, raw []byte) error {
			return processor.Submit(ctx, raw)
		})
		if subErr != nil {
			return fmt.Errorf("subscribing to frames: %w", subErr)
		}
		// Runs before the drain above so no new MQTT frames arrive while it waits.
		defer func() {
			if unsubErr := mqttClient.UnsubscribeFrames(); unsubErr != nil {
				log.Warn("error unsubscribing from MQTT frames", "error", unsubErr)
			}
		}()
		log.Info("subscribed to MQTT frames", "topic", mqtt.Topics{}.AllFrames(), "client_id", mqttClient.ClientID())
	}

	frameListener := listener.New(cfg.Listener, processor)
	frameListener.SetLogger(log.Component("listener"))
	switch startErr := frameListener.Start(ctx); {
	case errors.Is(startErr, listener.ErrDisabled):
		log.Info("frame listener disabled")
	case startErr != nil:
		return fmt.Errorf("starting frame listener: %w", startErr)
	default:
		defer func() {
			log.Info("stopping frame listener")
			if closeErr := frameListener.Close(); closeErr != nil {
				log.Error("error stopping frame listener", "error", closeErr)
			}
		}()
	}

	// Inspection API
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Store:    store,
			Gatherer: reg,
			Checks:   healthChecks(db, detector, mqttClient, influxClient),
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("DTU ingest started",
		"device_types", len(registry.Types()),
		"cache_ttl", cfg.CacheTTL().String(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, stopping services")

	return nil
}

// getConfigPath resolves the config file path.
// The --config flag wins, then the DTU_CONFIG environment variable, then
// the default path.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadEnvFile loads a dotenv file into the process environment.
// A missing file is not an error. Variables already set are not overridden.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// openCache builds the fingerprint cache store.
//
// With the cache enabled a Redis store is used. If Redis is unreachable at
// startup the service still starts: go-redis dials on demand, and until
// it succeeds every lookup fails open and frames are stored.
// With the cache disabled an in-process TTL map is used and swept hourly.
//
// Returns:
//   - changedetect.Store: The cache backend
//   - func(): Releases the backend on shutdown
func openCache(ctx context.Context, cfg config.CacheConfig, log *logging.Logger, reg prometheus.Registerer) (changedetect.Store, func()) {
	if !cfg.Enabled {
		mem := changedetect.NewMemoryStore()
		sweepCtx, cancel := context.WithCancel(ctx)
		go mem.RunSweeper(sweepCtx, sweepInterval)
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "dtu_cache_entries",
			Help: "Fingerprints held by the in-process cache.",
		}, func() float64 { return float64(mem.Len()) }))
		log.Warn("Redis cache disabled, fingerprints will not survive a restart")
		return mem, cancel
	}

	rdb, err := redis.Open(ctx, cfg)
	if err != nil {
		log.Warn("Redis unavailable at startup, change detection fails open until it recovers",
			"host", cfg.Host,
			"port", cfg.Port,
			"error", err,
		)
	} else {
		log.Info("Redis connected", "host", cfg.Host, "port", cfg.Port, "db", cfg.DB)
	}
	redis.RegisterPoolMetrics(reg, rdb)

	return changedetect.NewRedisStore(rdb), func() {
		log.Info("closing Redis connection")
		if err := rdb.Close(); err != nil {
			log.Error("error closing Redis", "error", err)
		}
	}
}

// healthChecks lists the components reported by /api/v1/health.
// Only the database is critical: without the cache or the outputs frames
// are still persisted.
func healthChecks(db *database.DB, detector *changedetect.Detector, mqttClient *mqtt.Client, influxClient *influxdb.Client) []api.Check {
	checks := []api.Check{
		{Name: "database", Critical: true, Fn: db.HealthCheck},
		{Name: "cache", Fn: detector.Ping},
	}
	if mqttClient != nil {
		checks = append(checks, api.Check{Name: "mqtt", Fn: mqttClient.HealthCheck})
	}
	if influxClient != nil {
		checks = append(checks, api.Check{Name: "influxdb", Fn: influxClient.HealthCheck})
	}
	return checks
}
