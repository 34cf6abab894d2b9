// Package cache memoizes read responses for a bounded time.
//
// Entries expire at an absolute deadline. Nothing is evicted except by TTL or
// explicit invalidation, so callers keep the key space small.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is a time-bounded key/value store
type Cache interface {
	// Get returns the value while it has not expired. Expired entries are evicted.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate removes every key that contains pattern
	Invalidate(ctx context.Context, pattern string) error
	Clear(ctx context.Context) error
}

// Key prefixes shared by the server and the client
const (
	KeyLeads    = "leads"
	KeyStatuses = "statuses"
	KeyUsers    = "users"
)

// CommentsKey returns the key fragment for a lead's comments
func CommentsKey(leadID string) string {
	return "comments_" + leadID
}

// GetJSON decodes a cached value into dest. A value that no longer decodes counts as a miss.
func GetJSON(ctx context.Context, c Cache, key string, dest interface{}) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON encodes value and stores it under key
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}
