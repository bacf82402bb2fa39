package api

import (
	"context"

	"tasks-api/domain"
)

// TaskStore abstracts persistence for handlers.
type TaskStore interface {
	ListTasks(ctx context.Context, filter string) ([]domain.Task, error)
	CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Pinger is implemented by stores able to report their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type messageResponse struct {
	Message string `json:"message"`
}
