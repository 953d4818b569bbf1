package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/scry-queue/internal/task"
)

// TypeCacheRebuild is the type identifier of CacheRebuildTask.
const TypeCacheRebuild = "cache_rebuild"

// cacheRebuildTimeout bounds a rebuild claim, in seconds.
const cacheRebuildTimeout = 30

// Cache is the key/value cache a rebuild refreshes.
type Cache interface {
	Rebuild(ctx context.Context, key string) error
}

// MemoryCache is a process-local Cache that records when each key was rebuilt.
type MemoryCache struct {
	mu      sync.Mutex
	rebuilt map[string]time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{rebuilt: make(map[string]time.Time)}
}

// Rebuild implements Cache.
func (c *MemoryCache) Rebuild(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuilt[key] = time.Now().UTC()
	return nil
}

// RebuiltAt returns when key was last rebuilt.
func (c *MemoryCache) RebuiltAt(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.rebuilt[key]
	return at, ok
}

// CacheRebuildTask refreshes one cache key.
type CacheRebuildTask struct {
	task.Base

	Key string `json:"key"`

	cache  Cache
	logger *slog.Logger
}

// NewCacheRebuildTask creates a rebuild request for key. The cache itself
// is supplied by the worker's registry when the task is decoded.
func NewCacheRebuildTask(key string) *CacheRebuildTask {
	return &CacheRebuildTask{Key: key}
}

// Type returns the task type identifier
func (t *CacheRebuildTask) Type() string {
	return TypeCacheRebuild
}

// TimeoutSeconds returns the fixed rebuild deadline.
func (t *CacheRebuildTask) TimeoutSeconds() int {
	return cacheRebuildTimeout
}

// Execute rebuilds the key.
func (t *CacheRebuildTask) Execute(ctx context.Context) error {
	if t.Key == "" {
		return task.NewValidationError("cache key cannot be empty")
	}
	if t.cache == nil {
		return fmt.Errorf("no cache configured for %s", TypeCacheRebuild)
	}

	if err := t.cache.Rebuild(ctx, t.Key); err != nil {
		return fmt.Errorf("failed to rebuild cache key %s: %w", t.Key, err)
	}

	if t.logger != nil {
		t.logger.Info("cache key rebuilt", "task_id", t.ID(), "key", t.Key)
	}
	t.Complete()
	return nil
}
