package blocklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// softKeyPrefix is the ephemeral-store key namespace: blocked:<ip> -> any
// truthy value. The WAF only ever reads these keys; operators (or future
// automated policies) write them with a TTL.
const softKeyPrefix = "blocked:"

// RedisStore is the soft-blocklist client backed by the ephemeral store.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore builds a client from a redis:// URL. Connectivity is not
// verified here: the soft tier fails open per request, so a Redis outage at
// boot must not keep the WAF down.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	return &RedisStore{rdb: redis.NewClient(opts)}, nil
}

// GetBlocked reports whether a soft-block entry exists for ip. An absent key
// is not an error; transport failures are.
func (s *RedisStore) GetBlocked(ctx context.Context, ip string) (bool, error) {
	val, err := s.rdb.Get(ctx, softKeyPrefix+ip).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("soft blocklist get: %w", err)
	}
	return val != "", nil
}

// Ping checks the ephemeral store connection; used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close shuts down the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
