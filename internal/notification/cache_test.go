package notification

import (
	"context"
	"os"
	"testing"
	"time"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRedisCache(t *testing.T) *RedisUnreadCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	cache := NewUnreadCache(rdb, &config.AppConfig{UnreadCacheTTL: time.Minute}, zaptest.NewLogger(t))
	return cache.(*RedisUnreadCache)
}

func TestNewUnreadCacheWithoutRedisIsNoop(t *testing.T) {
	ctx := context.Background()
	cache := NewUnreadCache(nil, nil, zaptest.NewLogger(t))
	cache.Set(ctx, s1, 0, 3)
	_, _, ok := cache.Get(ctx, s1)
	assert.False(t, ok)
}

func TestRedisUnreadCacheGenerations(t *testing.T) {
	ctx := context.Background()
	cache := newRedisCache(t)
	p := auth.Principal{ID: uuid.NewString(), Role: auth.RoleStudent}
	t.Cleanup(func() {
		cache.rdb.Del(ctx, generationKey(p), unreadKey(p, 0), unreadKey(p, 1))
	})

	_, gen, ok := cache.Get(ctx, p)
	require.False(t, ok)
	assert.Zero(t, gen)

	cache.Set(ctx, p, gen, 4)
	n, _, ok := cache.Get(ctx, p)
	require.True(t, ok)
	assert.EqualValues(t, 4, n)

	cache.Invalidate(ctx, p)
	_, next, ok := cache.Get(ctx, p)
	assert.False(t, ok)
	assert.EqualValues(t, 1, next)

	// a count computed under the old generation must stay invisible
	cache.Set(ctx, p, gen, 4)
	_, _, ok = cache.Get(ctx, p)
	assert.False(t, ok)

	ttl, err := cache.rdb.TTL(ctx, unreadKey(p, gen)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)
}
