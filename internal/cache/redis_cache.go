package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-backed cache for deployments where plan caching must
// be shared across instances. Values are stored JSON-encoded.
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCache creates a Redis-backed cache on the given client.
func NewRedisCache(client *redis.Client, defaultTTL time.Duration, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "actionloop:cache:"
	}
	return &RedisCache{
		client:    client,
		ttl:       defaultTTL,
		keyPrefix: keyPrefix,
	}
}

// Get retrieves an item from the cache. Misses return a not-found error.
func (c *RedisCache) Get(ctx context.Context, key string) (interface{}, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if err == redis.Nil {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	if err != nil {
		return nil, errbuilder.GenericErr("redis get failed", err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, errbuilder.GenericErr("failed to decode cached value", err)
	}
	return value, nil
}

// Set adds or updates an item in the cache with the default TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errbuilder.GenericErr("failed to encode cache value", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return errbuilder.GenericErr("redis set failed", err)
	}
	return nil
}
