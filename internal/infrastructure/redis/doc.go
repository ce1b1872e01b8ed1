// Package redis opens the Redis connection pool holding the
// change-detection fingerprints and exports its pool metrics.
//
// Cache semantics (key layout, fields, TTL) live in changedetect.
//
//	rdb, err := redis.Open(ctx, cfg.Cache)
//	if errors.Is(err, redis.ErrUnreachable) {
//	    // keep rdb: commands succeed once the server is back
//	}
//	defer rdb.Close()
//	redis.RegisterPoolMetrics(reg, rdb)
//	store := changedetect.NewRedisStore(rdb)
package redis
