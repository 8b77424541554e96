package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a namespaced Redis key/value store shared by provider token
// caching and request rate limiting.
type Cache struct {
	client redis.UniversalClient // works with both single and cluster
	log    *zap.Logger
}

func NewCache(addr, password string, db int, log *zap.Logger) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		log:    log,
	}
}

// NewFromClient wraps an existing client, e.g. a cluster client.
func NewFromClient(client redis.UniversalClient, log *zap.Logger) *Cache {
	return &Cache{client: client, log: log}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) IncrWithExpire(ctx context.Context, namespace, key string, window time.Duration) (int64, error) {
	countKey := namespace + ":" + key

	cnt, err := c.client.Incr(ctx, countKey).Result()
	if err != nil {
		return 0, err
	}

	// first hit in the window starts the clock
	if cnt == 1 {
		_ = c.client.Expire(ctx, countKey, window).Err()
	}

	return cnt, nil
}

// Get implements payment.TokenCache. Redis errors read as a miss so a cache
// outage only costs a fresh provider login.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, "token:"+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("token cache get failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return v, true
}

// Set implements payment.TokenCache.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, "token:"+key, value, ttl).Err(); err != nil {
		c.log.Warn("token cache set failed", zap.String("key", key), zap.Error(err))
	}
}
