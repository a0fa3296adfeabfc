package selector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"creative-studio-server/internal/pipeline"
)

// Cache stores whole SelectionResult values, keyed by
// (clip_path, style, preset, mode). It never stores bare object-detector
// output — object detection stays real-time on every call — only the fully
// fused SelectionResult the selector's analyze* operations produce.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (*pipeline.SelectionResult, bool)
	Set(ctx context.Context, key CacheKey, result pipeline.SelectionResult)
	Clear(ctx context.Context) error
}

// CacheKey is the cache key tuple, with a cacheVersion component
// appended so bumping the object-detector's heuristic set invalidates
// every existing entry without a scan.
type CacheKey struct {
	ClipPath    string
	Style       pipeline.NarrativeStyle
	Preset      string
	Mode        string // "full" or "fast"
	CacheVersion string
}

// DefaultCacheVersion is bumped whenever the object-detector or emotion
// analyzer's heuristic set changes meaningfully enough to invalidate
// previously cached selection results.
const DefaultCacheVersion = "v1"

func (k CacheKey) redisKey() string {
	return "selector:" + k.CacheVersion + ":" + k.ClipPath + ":" + string(k.Style) + ":" + k.Preset + ":" + k.Mode
}

// memoryCache is a per-process, mutex-guarded map with no TTL and
// explicit clear, kept as the default so the selector works without
// Redis configured.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]pipeline.SelectionResult
}

// NewMemoryCache returns the in-process cache implementation.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]pipeline.SelectionResult)}
}

func (c *memoryCache) Get(_ context.Context, key CacheKey) (*pipeline.SelectionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key.redisKey()]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (c *memoryCache) Set(_ context.Context, key CacheKey, result pipeline.SelectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.redisKey()] = result
}

func (c *memoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]pipeline.SelectionResult)
	return nil
}

// redisCache promotes the per-process cache to a durable, inspectable
// store so repeated runs across process restarts reuse prior analysis.
// No TTL is set by default; an explicit Clear scans and deletes the
// cache's key prefix.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing go-redis client. ttl of zero means keys
// never expire, matching the no-TTL cache contract.
func NewRedisCache(client *redis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, key CacheKey) (*pipeline.SelectionResult, bool) {
	raw, err := c.client.Get(ctx, key.redisKey()).Bytes()
	if err != nil {
		return nil, false
	}
	var result pipeline.SelectionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *redisCache) Set(ctx context.Context, key CacheKey, result pipeline.SelectionResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.client.Set(ctx, key.redisKey(), raw, c.ttl)
}

func (c *redisCache) Clear(ctx context.Context) error {
	keys, err := c.client.Keys(ctx, "selector:*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
