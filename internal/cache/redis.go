package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is a Cache shared by every process using the same Redis
type RedisCache struct {
	logger *zap.Logger
	client redis.UniversalClient
	prefix string
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a cache whose keys are namespaced by prefix
func NewRedisCache(logger *zap.Logger, client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "osrf"
	}
	return &RedisCache{
		logger: logger.Named("cache.redis"),
		client: client,
		prefix: prefix + ":cache:",
	}
}

func (c *RedisCache) Put(ctx context.Context, key string, val any, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) error {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cnst.ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
