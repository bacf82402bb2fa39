package storage

import (
	"context"
	"fmt"

	"tasks-api/domain"
)

// Unavailable is installed when no backend could be configured. The server
// keeps serving and every data call fails with domain.ErrUnavailable.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return domain.ErrUnavailable
	}
	return fmt.Errorf("%w: %s", domain.ErrUnavailable, u.Reason)
}

func (u Unavailable) ListTasks(context.Context, string) ([]domain.Task, error) {
	return nil, u.err()
}

func (u Unavailable) CreateTask(context.Context, domain.NewTask) (domain.Task, error) {
	return domain.Task{}, u.err()
}

func (u Unavailable) UpdateTask(context.Context, string, domain.TaskPatch) (domain.Task, error) {
	return domain.Task{}, u.err()
}

func (u Unavailable) DeleteTask(context.Context, string) error { return u.err() }

func (u Unavailable) Ping(context.Context) error { return u.err() }
