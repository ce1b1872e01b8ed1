package changedetect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash field names of a cache entry.
const (
	fieldFingerprint = "warn"
	fieldRowID       = "id"
)

// RedisStore keeps one hash per device: HMGET for lookups, HSET and
// EXPIRE inside MULTI/EXEC for writes.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore creates a store on an existing go-redis client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := s.rdb.HMGet(ctx, key, fieldFingerprint, fieldRowID).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("hmget %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Entry{}, false, nil
	}

	fingerprint, ok := vals[0].(string)
	if !ok {
		return Entry{}, false, nil
	}
	rowID, ok := vals[1].(string)
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{Fingerprint: fingerprint, RowID: rowID}, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldFingerprint, entry.Fingerprint, fieldRowID, entry.RowID)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
