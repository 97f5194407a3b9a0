package rediscache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptCounter limits attempts per key within a fixed window.
type AttemptCounter interface {
	// Hit records an attempt. When the limit is exceeded allowed is false and
	// retryAfter is the time left in the window.
	Hit(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)

	// Reset clears the key, e.g. after a successful login.
	Reset(ctx context.Context, key string) error
}

// RedisCounter keeps counters in Redis with INCR and a window TTL.
type RedisCounter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisCounter allows limit attempts per window for each key.
func NewRedisCounter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

var _ AttemptCounter = (*RedisCounter)(nil)

// Hit implements AttemptCounter.Hit
func (c *RedisCounter) Hit(ctx context.Context, key string) (bool, time.Duration, error) {
	k := c.prefix + ":" + key

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// NX keeps the window anchored at the first attempt
	pipe.ExpireNX(ctx, k, c.window)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to count attempt: %w", err)
	}

	if incr.Val() <= c.limit {
		return true, 0, nil
	}
	retry := ttl.Val()
	if retry <= 0 {
		retry = c.window
	}
	return false, retry, nil
}

// Reset implements AttemptCounter.Reset
func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// MemoryCounter is the single-process AttemptCounter.
type MemoryCounter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryCounter allows limit attempts per window for each key.
func NewMemoryCounter(limit int, window time.Duration) *MemoryCounter {
	return &MemoryCounter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

var _ AttemptCounter = (*MemoryCounter)(nil)

// Hit implements AttemptCounter.Hit
func (c *MemoryCounter) Hit(_ context.Context, key string) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)

	w, ok := c.windows[key]
	if !ok {
		w = &fixedWindow{resetAt: now.Add(c.window)}
		c.windows[key] = w
	}
	w.count++
	if w.count <= c.limit {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

// Reset implements AttemptCounter.Reset
func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}

func (c *MemoryCounter) sweep(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, k)
		}
	}
}
