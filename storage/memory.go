package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tasks-api/domain"
)

// Memory keeps tasks in process. It backs tests and local development.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
	now   func() time.Time
}

// NewMemory creates an empty in-memory task store.
func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[string]domain.Task),
		now:   nextTimestamp,
	}
}

func (m *Memory) ListTasks(_ context.Context, filter string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	out = domain.FilterTasks(out, filter)
	domain.SortNewestFirst(out)
	return out, nil
}

func (m *Memory) CreateTask(_ context.Context, in domain.NewTask) (domain.Task, error) {
	title, desc, err := in.Normalize()
	if err != nil {
		return domain.Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) UpdateTask(_ context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return domain.Task{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	t = patch.Apply(t, m.now())
	m.tasks[id] = t
	return t, nil
}

func (m *Memory) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(context.Context) error { return nil }
