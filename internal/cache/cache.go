// Package cache stores JSON snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"classbook/internal/metrics"
	"classbook/internal/model"
)

const keyPrefix = "classbook:"

// Cache is a Redis-backed JSON cache. A nil *Cache is valid and never hits.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New wraps client. Non-positive ttl disables caching.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

func (c *Cache) read(ctx context.Context, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Cache) write(ctx context.Context, key string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}

func expansionKey(version int64, from time.Time, horizonWeeks int) string {
	return fmt.Sprintf("expansion:v%d:%s:%d", version, from.UTC().Format("20060102"), horizonWeeks)
}

// Instances returns a cached expansion for the catalog version, day and horizon.
func (c *Cache) Instances(ctx context.Context, version int64, from time.Time, horizonWeeks int) ([]model.EventInstance, bool) {
	if !c.enabled() {
		return nil, false
	}
	var instances []model.EventInstance
	if c.read(ctx, expansionKey(version, from, horizonWeeks), &instances) {
		metrics.IncCacheHit()
		return instances, true
	}
	metrics.IncCacheMiss()
	return nil, false
}

// StoreInstances caches an expansion.
func (c *Cache) StoreInstances(ctx context.Context, version int64, from time.Time, horizonWeeks int, instances []model.EventInstance) {
	c.write(ctx, expansionKey(version, from, horizonWeeks), instances)
}

// Version returns the catalog version counter, 0 when unknown.
func (c *Cache) Version(ctx context.Context) int64 {
	if c == nil || c.redis == nil {
		return 0
	}
	v, err := c.redis.Get(ctx, keyPrefix+"catalog_version").Int64()
	if err != nil {
		return 0
	}
	return v
}

// BumpVersion invalidates every cached expansion by moving the version forward.
func (c *Cache) BumpVersion(ctx context.Context) (int64, error) {
	if c == nil || c.redis == nil {
		return 0, nil
	}
	return c.redis.Incr(ctx, keyPrefix+"catalog_version").Result()
}
