package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"tasks-api/domain"
)

const (
	cacheKeyPrefix     = "tasks"
	generationCacheKey = cacheKeyPrefix + ":gen"
)

type backend interface {
	ListTasks(ctx context.Context, filter string) ([]domain.Task, error)
	CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Cache wraps a backend with Redis-backed caching of list results. Each
// mutation bumps a generation counter that is part of every list key, so
// lists cached before a write are never served after it.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	gen, ok := c.generation(ctx)
	if ok {
		if tasks, hit := c.loadTasks(ctx, gen, filter); hit {
			return tasks, nil
		}
	}

	tasks, err := c.base.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	if ok {
		c.storeTasks(ctx, gen, filter, tasks)
	}
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	t, err := c.base.CreateTask(ctx, in)
	if err != nil {
		return domain.Task{}, err
	}
	c.invalidate(ctx)
	return t, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := c.base.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.invalidate(ctx)
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Ping forwards to the backing store when it supports it.
func (c *Cache) Ping(ctx context.Context) error {
	if p, ok := c.base.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// generation returns the current cache generation. ok is false when Redis is
// not usable, in which case the cache is bypassed entirely.
func (c *Cache) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationCacheKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, true
		}
		return 0, false
	}
	return gen, true
}

func (c *Cache) loadTasks(ctx context.Context, gen int64, filter string) ([]domain.Task, bool) {
	key := tasksCacheKey(gen, filter)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, gen int64, filter string, tasks []domain.Task) {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(gen, filter), data, c.ttl).Err()
}

func (c *Cache) invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, generationCacheKey).Err()
}

func tasksCacheKey(gen int64, filter string) string {
	return cacheKeyPrefix + ":" + strconv.FormatInt(gen, 10) + ":" + strings.ToLower(filter)
}
