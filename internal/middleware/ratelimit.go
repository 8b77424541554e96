package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"marketplace/internal/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limiter decides whether key may make another request in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// InMemoryRateLimiter limits requests per key (e.g. IP or user ID).
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewInMemoryRateLimiter(limit int, window time.Duration) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (r *InMemoryRateLimiter) Allow(_ context.Context, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	valid := prune(r.requests[key], now.Add(-r.window))
	if len(valid) >= r.limit {
		r.requests[key] = valid
		return false
	}
	r.requests[key] = append(valid, now)
	return true
}

// Cleanup drops expired keys every interval until ctx is done.
func (r *InMemoryRateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		r.mu.Lock()
		cutoff := time.Now().Add(-r.window)
		for k, times := range r.requests {
			if valid := prune(times, cutoff); len(valid) == 0 {
				delete(r.requests, k)
			} else {
				r.requests[k] = valid
			}
		}
		r.mu.Unlock()
	}
}

func prune(times []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// Counter is a shared fixed-window counter, e.g. cache.Cache.
type Counter interface {
	IncrWithExpire(ctx context.Context, namespace, key string, window time.Duration) (int64, error)
}

// RedisRateLimiter shares the limit across instances. When the counter is
// unreachable it allows the request.
type RedisRateLimiter struct {
	counter   Counter
	namespace string
	limit     int64
	window    time.Duration
	log       *zap.Logger
}

func NewRedisRateLimiter(counter Counter, namespace string, limit int, window time.Duration, log *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{counter: counter, namespace: "ratelimit:" + namespace, limit: int64(limit), window: window, log: log}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	n, err := r.counter.IncrWithExpire(ctx, r.namespace, key, r.window)
	if err != nil {
		r.log.Warn("rate limit counter unavailable", zap.Error(err))
		return true
	}
	return n <= r.limit
}

// RateLimit limits by authenticated user when known, client IP otherwise.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id := GetUserID(c); id != 0 {
			key = "user:" + uintString(id)
		}
		if !limiter.Allow(c.Request.Context(), key) {
			response.Abort(c, http.StatusTooManyRequests, "error.rate_limited")
			return
		}
		c.Next()
	}
}
