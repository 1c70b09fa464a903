package cache

import (
	"context"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/logging"
)

// Open returns the cache selected by cfg: Redis when an address is configured,
// memory otherwise. A Redis connection failure falls back to memory with a warning.
// It returns nil when caching is disabled.
func Open(ctx context.Context, cfg config.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.RedisAddr == "" {
		return NewMemory()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	r, err := NewRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logging.Warn("Falling back to in-memory cache", "err", err)
		return NewMemory()
	}
	return r
}
