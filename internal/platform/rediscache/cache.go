// Package rediscache provides the Redis-backed blog cache and fixed-window
// attempt counters, with in-process fallbacks used when Redis is not configured.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NewClient parses url and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// BlogCache caches published blogs by ID.
type BlogCache interface {
	// Get returns the cached blog; ok is false on a miss.
	Get(ctx context.Context, id uuid.UUID) (blog *domain.Blog, ok bool, err error)
	Set(ctx context.Context, blog *domain.Blog) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// cachedBlog carries the fields hidden from the JSON API.
type cachedBlog struct {
	domain.Blog
	DeletionStatus domain.DeletionStatus `json:"deletion_status"`
}

// blogFenceTTL bounds how long an invalidation blocks older copies of a blog
// from being cached again. It only needs to outlast a slow read.
const blogFenceTTL = time.Minute

// setIfFresh stores ARGV[1] under KEYS[1] unless the fence in KEYS[2] is newer
// than the blog's updated_at (ARGV[2], unix millis).
var setIfFresh = redis.NewScript(`
local fence = redis.call("GET", KEYS[2])
if fence and tonumber(fence) > tonumber(ARGV[2]) then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// RedisBlogCache stores blogs as JSON under blog:<id>. Invalidate leaves a
// short-lived fence under blog:<id>:fence so a reader holding a copy loaded
// before the change cannot put it back.
type RedisBlogCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisBlogCache creates a cache with the given entry TTL.
func NewRedisBlogCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisBlogCache {
	return &RedisBlogCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "blog_cache"),
		now:    time.Now,
	}
}

var _ BlogCache = (*RedisBlogCache)(nil)

func blogKey(id uuid.UUID) string {
	return "blog:" + id.String()
}

func fenceKey(id uuid.UUID) string {
	return blogKey(id) + ":fence"
}

// Get implements BlogCache.Get
func (c *RedisBlogCache) Get(ctx context.Context, id uuid.UUID) (*domain.Blog, bool, error) {
	data, err := c.client.Get(ctx, blogKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}

	var cached cachedBlog
	if err := json.Unmarshal(data, &cached); err != nil {
		// A bad entry is treated as a miss and dropped
		c.logger.Warn("discarding unreadable cache entry", "blog_id", id, "error", err)
		_ = c.client.Del(ctx, blogKey(id)).Err()
		return nil, false, nil
	}
	blog := cached.Blog
	blog.DeletionStatus = cached.DeletionStatus
	return &blog, true, nil
}

// Set implements BlogCache.Set. A blog last updated before the most recent
// Invalidate of the same ID is not stored.
func (c *RedisBlogCache) Set(ctx context.Context, blog *domain.Blog) error {
	data, err := json.Marshal(cachedBlog{Blog: *blog, DeletionStatus: blog.DeletionStatus})
	if err != nil {
		return fmt.Errorf("failed to marshal blog: %w", err)
	}
	stored, err := setIfFresh.Run(ctx, c.client,
		[]string{blogKey(blog.ID), fenceKey(blog.ID)},
		data, blog.UpdatedAt.UnixMilli(), c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	if stored == 0 {
		c.logger.Debug("skipped caching blog older than last invalidation",
			"blog_id", blog.ID,
			"updated_at", blog.UpdatedAt)
	}
	return nil
}

// Invalidate implements BlogCache.Invalidate
func (c *RedisBlogCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, blogKey(id))
	pipe.Set(ctx, fenceKey(id), c.now().UnixMilli(), blogFenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// NoopBlogCache never stores anything.
type NoopBlogCache struct{}

var _ BlogCache = NoopBlogCache{}

// Get always misses.
func (NoopBlogCache) Get(context.Context, uuid.UUID) (*domain.Blog, bool, error) {
	return nil, false, nil
}

// Set does nothing.
func (NoopBlogCache) Set(context.Context, *domain.Blog) error { return nil }

// Invalidate does nothing.
func (NoopBlogCache) Invalidate(context.Context, uuid.UUID) error { return nil }
