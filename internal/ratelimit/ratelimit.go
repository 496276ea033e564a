// Package ratelimit provides fixed-window counters for throttling account endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Limiter reports whether another hit for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Policy is a fixed-window limit.
type Policy struct {
	Max    int
	Window time.Duration
}

// Disabled reports whether the policy lets everything through.
func (p Policy) Disabled() bool {
	return p.Max <= 0 || p.Window <= 0
}

// RedisLimiter counts hits with INCR and sets the window expiry on the first hit.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	policy Policy
}

// NewRedisLimiter builds a limiter storing counters under prefix.
func NewRedisLimiter(client redis.Cmdable, prefix string, policy Policy) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, policy: policy}
}

// incrWithExpiry increments the counter and starts the window on the first hit.
var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.policy.Disabled() {
		return true, nil
	}
	n, err := incrWithExpiry.Run(ctx, l.client, []string{l.prefix + key}, l.policy.Window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	return n <= int64(l.policy.Max), nil
}

// MemoryLimiter keeps counters in process memory.
type MemoryLimiter struct {
	mu     sync.Mutex
	store  *cache.Cache
	policy Policy
	now    func() time.Time
}

// window is the counter state of one key.
type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter builds an in-process limiter.
func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	cleanup := policy.Window
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &MemoryLimiter{
		store:  cache.New(policy.Window, cleanup),
		policy: policy,
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.policy.Disabled() {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := window{resetAt: now.Add(l.policy.Window)}
	if cached, found := l.store.Get(key); found {
		if existing, ok := cached.(window); ok && now.Before(existing.resetAt) {
			w = existing
		}
	}
	w.count++
	l.store.Set(key, w, w.resetAt.Sub(now))
	return w.count <= l.policy.Max, nil
}

// New returns a Redis limiter when client is non-nil, otherwise a memory limiter.
func New(client redis.Cmdable, prefix string, policy Policy) Limiter {
	if client != nil {
		return NewRedisLimiter(client, prefix, policy)
	}
	return NewMemoryLimiter(policy)
}
