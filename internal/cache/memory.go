package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"

	"go.uber.org/zap"
)

type entry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is a process local Cache. Expired entries are dropped when read.
type MemoryCache struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		logger:  logger.Named("cache.memory"),
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Put(_ context.Context, key string, val any, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	e := entry{data: data}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dst any) error {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return cnst.ErrCacheMiss
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expires.Equal(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return cnst.ErrCacheMiss
	}
	return json.Unmarshal(e.data, dst)
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
