package notification

import (
	"context"
	"fmt"
	"time"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// UnreadCache memoizes per-recipient unread counts between writes.
// Get reports the recipient's current generation; Set only lands under that generation, so a count
// computed before a concurrent Invalidate is never served afterwards.
type UnreadCache interface {
	Get(ctx context.Context, recipient auth.Principal) (count, gen int64, ok bool)
	Set(ctx context.Context, recipient auth.Principal, gen, count int64)
	Invalidate(ctx context.Context, recipient auth.Principal)
}

// NewUnreadCache returns a Redis-backed cache, or a no-op cache when rdb is nil.
func NewUnreadCache(rdb *redis.Client, cfg *config.AppConfig, log *zap.Logger) UnreadCache {
	if rdb == nil {
		return noopCache{}
	}
	return &RedisUnreadCache{rdb: rdb, ttl: cfg.UnreadCacheTTL, log: log.Named("notification.cache")}
}

type noopCache struct{}

func (noopCache) Get(context.Context, auth.Principal) (int64, int64, bool) { return 0, 0, false }
func (noopCache) Set(context.Context, auth.Principal, int64, int64) {}
func (noopCache) Invalidate(context.Context, auth.Principal) {}

// RedisUnreadCache stores counts under notifications:unread:<role>:<id>:<gen>. Invalidate bumps
// notifications:unread:gen:<role>:<id>; counts left under older generations expire with their TTL.
// Cache failures are logged and treated as misses; the store stays authoritative.
type RedisUnreadCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func generationKey(p auth.Principal) string {
	return fmt.Sprintf("notifications:unread:gen:%s:%s", p.Role, p.ID)
}

func unreadKey(p auth.Principal, gen int64) string {
	return fmt.Sprintf("notifications:unread:%s:%s:%d", p.Role, p.ID, gen)
}

func (c *RedisUnreadCache) Get(ctx context.Context, recipient auth.Principal) (int64, int64, bool) {
	gen, err := c.rdb.Get(ctx, generationKey(recipient)).Int64()
	if err != nil && err != redis.Nil {
		c.log.Warn("unread cache generation read failed", zap.String("recipient", recipient.ID), zap.Error(err))
		return 0, -1, false
	}
	n, err := c.rdb.Get(ctx, unreadKey(recipient, gen)).Int64()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("unread cache read failed", zap.String("recipient", recipient.ID), zap.Error(err))
		}
		return 0, gen, false
	}
	return n, gen, true
}

func (c *RedisUnreadCache) Set(ctx context.Context, recipient auth.Principal, gen, count int64) {
	if gen < 0 {
		return
	}
	if err := c.rdb.Set(ctx, unreadKey(recipient, gen), count, c.ttl).Err(); err != nil {
		c.log.Warn("unread cache write failed", zap.String("recipient", recipient.ID), zap.Error(err))
	}
}

func (c *RedisUnreadCache) Invalidate(ctx context.Context, recipient auth.Principal) {
	if err := c.rdb.Incr(ctx, generationKey(recipient)).Err(); err != nil {
		c.log.Warn("unread cache invalidation failed", zap.String("recipient", recipient.ID), zap.Error(err))
	}
}
