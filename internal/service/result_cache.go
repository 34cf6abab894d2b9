package service

import (
	"context"
	"time"

	"github.com/leadboard/internal/cache"
	"github.com/rs/zerolog"
)

// resultCache memoizes read results. Backend failures degrade to a miss and are only logged.
type resultCache struct {
	store cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func (c *resultCache) get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil || c.store == nil {
		return false
	}
	ok, err := cache.GetJSON(ctx, c.store, key, dest)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	return ok
}

func (c *resultCache) set(ctx context.Context, key string, value interface{}) {
	if c == nil || c.store == nil {
		return
	}
	if err := cache.SetJSON(ctx, c.store, key, value, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *resultCache) invalidate(ctx context.Context, pattern string) {
	if c == nil || c.store == nil {
		return
	}
	if err := c.store.Invalidate(ctx, pattern); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
	}
}
