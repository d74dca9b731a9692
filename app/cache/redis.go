package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store[string] = (*RedisStore[string])(nil)

// RedisStore shares cached values between processes. Values are stored as JSON under prefix.
type RedisStore[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)
	return client, nil
}

func NewRedisStore[V any](client *redis.Client, prefix string, ttl time.Duration) *RedisStore[V] {
	return &RedisStore[V]{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore[V]) Key(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%x", s.prefix, hash[:16])
}

func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool) {
	var value V
	data, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if err == redis.Nil {
		return value, false
	}
	if err != nil {
		slog.Warn("Cache read failed", "prefix", s.prefix, "error", err)
		return value, false
	}

	if err := json.Unmarshal(data, &value); err != nil {
		s.client.Del(ctx, s.Key(key))
		return value, false
	}
	return value, true
}

func (s *RedisStore[V]) Set(ctx context.Context, key string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Failed to encode cache value", "prefix", s.prefix, "error", err)
		return
	}

	if err := s.client.Set(ctx, s.Key(key), data, s.ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "prefix", s.prefix, "error", err)
	}
}

// Len counts keys under the store prefix. Returns -1 when Redis is unreachable.
func (s *RedisStore[V]) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var count int
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 1000).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if iter.Err() != nil {
		return -1
	}
	return count
}

// Health reports Redis reachability.
func Health(ctx context.Context, client *redis.Client) map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
		"type":   "redis",
	}

	if err := client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if size, err := client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = size
	}

	return health
}
