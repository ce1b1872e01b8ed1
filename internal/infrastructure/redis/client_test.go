package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/config"
)

func testConfig(t *testing.T, mr *miniredis.Miniredis) config.CacheConfig {
	t.Helper()

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("parsing miniredis port: %v", err)
	}
	return config.CacheConfig{
		Enabled:      true,
		Host:         mr.Host(),
		Port:         port,
		KeyPrefix:    "dtu:device:",
		TTLDays:      7,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     4,
	}
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rdb, err := Open(ctx, testConfig(t, mr))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rdb.Close() //nolint:errcheck // Test cleanup

	if err := rdb.Set(ctx, "dtu:device:D1", "fp", 0).Err(); err != nil {
		t.Fatalf("SET through opened client: %v", err)
	}
	if got, _ := mr.Get("dtu:device:D1"); got != "fp" {
		t.Errorf("stored value = %q, want fp", got)
	}
}

func TestOpen_Disabled(t *testing.T) {
	rdb, err := Open(context.Background(), config.CacheConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Open() error = %v, want ErrDisabled", err)
	}
	if rdb != nil {
		t.Error("Open() returned a client for a disabled cache")
	}
}

func TestOpen_UnreachableStillUsable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	addr := mr.Addr()
	mr.Close()
	ctx := context.Background()

	rdb, err := Open(ctx, cfg)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Open() error = %v, want ErrUnreachable", err)
	}
	if rdb == nil {
		t.Fatal("Open() returned no client for an unreachable cache")
	}
	defer rdb.Close() //nolint:errcheck // Test cleanup

	// Same address, server back up: the pool redials on the next command.
	mr2 := miniredis.NewMiniRedis()
	if err := mr2.StartAddr(addr); err != nil {
		t.Skipf("cannot restart miniredis on %s: %v", addr, err)
	}
	defer mr2.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Errorf("Ping() after server returned = %v", err)
	}
}

func TestOptions(t *testing.T) {
	opts := Options(config.CacheConfig{
		Host:     "cache.local",
		Port:     6380,
		Password: "pw",
		DB:       2,
		PoolSize: 8,
	})

	if opts.Addr != "cache.local:6380" {
		t.Errorf("Addr = %q, want cache.local:6380", opts.Addr)
	}
	if opts.DB != 2 || opts.Password != "pw" || opts.PoolSize != 8 {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.ClientName != clientName {
		t.Errorf("ClientName = %q, want %q", opts.ClientName, clientName)
	}

	if got := Options(config.CacheConfig{Host: "::1", Port: 6379}).Addr; got != "[::1]:6379" {
		t.Errorf("IPv6 Addr = %q", got)
	}
}

func TestRegisterPoolMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rdb, err := Open(ctx, testConfig(t, mr))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rdb.Close() //nolint:errcheck // Test cleanup

	reg := prometheus.NewRegistry()
	RegisterPoolMetrics(reg, rdb)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	values := make(map[string]float64, len(families))
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	for _, name := range []string{"dtu_cache_pool_connections", "dtu_cache_pool_idle_connections", "dtu_cache_pool_timeouts"} {
		if _, ok := values[name]; !ok {
			t.Errorf("%s not registered", name)
		}
	}
	if values["dtu_cache_pool_connections"] < 1 {
		t.Errorf("dtu_cache_pool_connections = %v after a successful ping, want >= 1", values["dtu_cache_pool_connections"])
	}
}
