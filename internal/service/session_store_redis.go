package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKeyPrefix = "weapp-session:"

// RedisSessionStore keeps session keys in Redis. The client may be a single
// node, a failover group or a cluster.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisSessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Ping reports whether Redis is reachable; used by the readiness probe.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
