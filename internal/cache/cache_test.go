package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classbook/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, ttl), mr
}

func TestInstances_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)

	day := time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)
	_, ok := c.Instances(ctx, 1, day, 4)
	assert.False(t, ok)

	instances := []model.EventInstance{{
		InstanceID:      "a",
		TemplateID:      1,
		Name:            "Flow",
		StartAt:         day.Add(8 * time.Hour),
		DurationMinutes: 60,
		Tags:            []string{"yoga"},
	}}
	c.StoreInstances(ctx, 1, day, 4, instances)

	got, ok := c.Instances(ctx, 1, day, 4)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].InstanceID)
	assert.True(t, got[0].StartAt.Equal(instances[0].StartAt))

	_, ok = c.Instances(ctx, 2, day, 4)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok = c.Instances(ctx, 1, day, 4)
	assert.False(t, ok)
}

func TestVersion(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute)

	assert.Equal(t, int64(0), c.Version(ctx))
	v, err := c.BumpVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), c.Version(ctx))
	assert.NoError(t, c.Ping(ctx))
}

func TestNilCache(t *testing.T) {
	ctx := context.Background()
	var c *Cache

	_, ok := c.Instances(ctx, 1, time.Now(), 4)
	assert.False(t, ok)
	c.StoreInstances(ctx, 1, time.Now(), 4, nil)
	assert.Equal(t, int64(0), c.Version(ctx))
	assert.NoError(t, c.Ping(ctx))

	disabled := New(nil, time.Minute)
	_, ok = disabled.Instances(ctx, 1, time.Now(), 4)
	assert.False(t, ok)
}
