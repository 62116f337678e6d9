package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/transport"

	"go.uber.org/zap"
)

// Cache stores JSON encoded values with an expiry
type Cache interface {
	// Put stores val under key. A ttl <= 0 keeps it until deleted.
	Put(ctx context.Context, key string, val any, ttl time.Duration) error
	// Get decodes the value under key into dst, or returns cnst.ErrCacheMiss
	Get(ctx context.Context, key string, dst any) error
	// Delete removes key
	Delete(ctx context.Context, key string) error
	// Close releases the backend connection
	Close() error
}

// New creates the cache described by cfg
func New(logger *zap.Logger, cfg *config.CacheConfig) (Cache, error) {
	logger.Info("Initializing cache", zap.String("type", cfg.Type))
	switch cfg.Type {
	case cnst.CacheMemory:
		return NewMemoryCache(logger), nil
	case cnst.CacheRedis:
		client, err := transport.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return NewRedisCache(logger, client, cfg.Redis.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
