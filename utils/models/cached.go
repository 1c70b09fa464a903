package models

import (
	"context"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/cache"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/logging"
)

// CachedProvider answers repeated conversations from a cache
type CachedProvider struct {
	Provider
	cache cache.Cache
	ttl   time.Duration
}

// WithCache wraps p. A nil cache returns p unchanged.
func WithCache(p Provider, c cache.Cache, ttl time.Duration) Provider {
	if c == nil {
		return p
	}
	return &CachedProvider{Provider: p, cache: c, ttl: ttl}
}

// Complete returns a cached reply when the same model saw the same conversation
func (c *CachedProvider) Complete(ctx context.Context, modelName string, conv Conversation) (string, error) {
	key := cache.Key(c.Name(), modelName, conv.Fingerprint())
	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		logging.Warn("cache read failed", "err", err)
	} else if ok {
		config.DebugLog("[Cache] hit for model %s", modelName)
		return v, nil
	}

	reply, err := c.Provider.Complete(ctx, modelName, conv)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, reply, c.ttl); err != nil {
		logging.Warn("cache write failed", "err", err)
	}
	return reply, nil
}

// Unwrap returns the wrapped provider
func (c *CachedProvider) Unwrap() Provider {
	return c.Provider
}
