package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
)

const (
	startupPingTimeout = 10 * time.Second

	// clientName shows up in CLIENT LIST on the server.
	clientName = "dtu-ingest"
)

// Options maps the cache section of config.yaml onto go-redis options.
func Options(cfg config.CacheConfig) *goredis.Options {
	return &goredis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		ClientName:   clientName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
}

// Open creates the pooled fingerprint cache client and pings it.
//
// A failed ping returns the client together with ErrUnreachable: go-redis
// dials on demand, so a cache that is down at startup is used as soon as
// it comes back and change detection fails open until then. The caller
// owns the client and must Close it.
//
// Parameters:
//   - ctx: Bounds the startup ping (capped at 10s)
//   - cfg: Cache configuration
//
// Returns:
//   - *goredis.Client: Client, nil only with ErrDisabled
//   - error: ErrDisabled, or ErrUnreachable wrapping the ping error
func Open(ctx context.Context, cfg config.CacheConfig) (*goredis.Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	rdb := goredis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return rdb, fmt.Errorf("%w: %s: %w", ErrUnreachable, rdb.Options().Addr, err)
	}
	return rdb, nil
}

// RegisterPoolMetrics exports the client's pool counters as
// dtu_cache_pool_* gauges.
func RegisterPoolMetrics(reg prometheus.Registerer, rdb *goredis.Client) {
	gauge := func(name, help string, v func(*goredis.PoolStats) uint32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "dtu_cache_pool_" + name,
			Help: help,
		}, func() float64 { return float64(v(rdb.PoolStats())) })
	}
	reg.MustRegister(
		gauge("connections", "Open connections in the Redis pool.", func(s *goredis.PoolStats) uint32 { return s.TotalConns }),
		gauge("idle_connections", "Idle connections in the Redis pool.", func(s *goredis.PoolStats) uint32 { return s.IdleConns }),
		gauge("timeouts", "Times a command waited too long for a pooled connection.", func(s *goredis.PoolStats) uint32 { return s.Timeouts }),
	)
}
