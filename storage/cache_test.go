package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tasks-api/domain"
)

type stubBackend struct {
	listFn   func(ctx context.Context, filter string) ([]domain.Task, error)
	createFn func(ctx context.Context, in domain.NewTask) (domain.Task, error)
	updateFn func(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	deleteFn func(ctx context.Context, id string) error
}

func (s *stubBackend) ListTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	if s.listFn == nil {
		return nil, errors.New("unexpected ListTasks call")
	}
	return s.listFn(ctx, filter)
}

func (s *stubBackend) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	if s.createFn == nil {
		return domain.Task{}, errors.New("unexpected CreateTask call")
	}
	return s.createFn(ctx, in)
}

func (s *stubBackend) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if s.updateFn == nil {
		return domain.Task{}, errors.New("unexpected UpdateTask call")
	}
	return s.updateFn(ctx, id, patch)
}

func (s *stubBackend) DeleteTask(ctx context.Context, id string) error {
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteFn(ctx, id)
}

func TestTasksCacheKeyKeepsWhitespace(t *testing.T) {
	if tasksCacheKey(3, " Milk") == tasksCacheKey(3, "milk") {
		t.Fatalf("filters differing in whitespace must not share a cache entry")
	}
	if tasksCacheKey(3, "Milk") != tasksCacheKey(3, "milk") {
		t.Fatalf("filters differing only in case should share a cache entry")
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheListMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	expected := []domain.Task{{ID: "t1", Title: "Buy milk", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}

	var calls int
	cache := NewCache(&stubBackend{
		listFn: func(ctx context.Context, filter string) ([]domain.Task, error) {
			calls++
			if filter != "Milk" {
				t.Fatalf("unexpected filter: %q", filter)
			}
			return append([]domain.Task(nil), expected...), nil
		},
	}, client, time.Minute)

	tasks, err := cache.ListTasks(ctx, "Milk")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if !reflect.DeepEqual(tasks, expected) {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if ttl := mr.TTL(tasksCacheKey(0, "milk")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.ListTasks(ctx, "Milk")
	if err != nil {
		t.Fatalf("list cached tasks: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached tasks: %#v", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached list to avoid backend, calls=%d", calls)
	}
}

func TestCacheMutationsInvalidateLists(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	mem := NewMemory()
	cache := NewCache(mem, client, time.Minute)

	if _, err := cache.ListTasks(ctx, ""); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	created, err := cache.CreateTask(ctx, domain.NewTask{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tasks, err := cache.ListTasks(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected fresh list after create, got %d tasks", len(tasks))
	}

	done := true
	if _, err := cache.UpdateTask(ctx, created.ID, domain.TaskPatch{Completed: &done}); err != nil {
		t.Fatalf("update: %v", err)
	}
	tasks, err = cache.ListTasks(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !tasks[0].Completed {
		t.Fatalf("expected fresh list after update, got %#v", tasks[0])
	}

	if err := cache.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tasks, err = cache.ListTasks(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected fresh list after delete, got %d tasks", len(tasks))
	}

	gen, err := client.Get(ctx, generationCacheKey).Int64()
	if err != nil {
		t.Fatalf("read generation: %v", err)
	}
	if gen != 3 {
		t.Fatalf("expected generation 3, got %d", gen)
	}
}

func TestCacheFailedMutationKeepsGeneration(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewCache(NewMemory(), client, time.Minute)

	if err := cache.DeleteTask(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists(generationCacheKey) {
		t.Fatalf("generation must not change on failed mutation")
	}
}

func TestCacheRedisDownFallsBackToBackend(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	var calls int
	cache := NewCache(&stubBackend{
		listFn: func(context.Context, string) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "1"}}, nil
		},
	}, client, time.Minute)

	for i := 0; i < 2; i++ {
		tasks, err := cache.ListTasks(context.Background(), "")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(tasks) != 1 {
			t.Fatalf("unexpected tasks: %#v", tasks)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every call to reach backend, got %d", calls)
	}
}

func TestCacheCorruptEntryIsDropped(t *testing.T) {
	mr, client := newTestRedis(t)
	if err := mr.Set(tasksCacheKey(0, ""), "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := NewCache(&stubBackend{
		listFn: func(context.Context, string) ([]domain.Task, error) {
			return []domain.Task{{ID: "fresh"}}, nil
		},
	}, client, time.Minute)

	tasks, err := cache.ListTasks(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "fresh" {
		t.Fatalf("expected backend result, got %#v", tasks)
	}
}

func TestCacheZeroTTLDisablesCaching(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewCache(&stubBackend{
		listFn: func(context.Context, string) ([]domain.Task, error) { return []domain.Task{}, nil },
	}, client, 0)

	if _, err := cache.ListTasks(context.Background(), ""); err != nil {
		t.Fatalf("list: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys with zero TTL, got %v", keys)
	}
}
