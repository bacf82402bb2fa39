package domain

// Task change event types published to downstream consumers.
const (
	EventTaskCreated = "task-created"
	EventTaskUpdated = "task-updated"
	EventTaskDeleted = "task-deleted"
)

// TaskEvent describes a committed change to a task.
type TaskEvent struct {
	Type     string `json:"type"`
	EntityID string `json:"entityId"`
	Task     *Task  `json:"task,omitempty"`
	Time     int64  `json:"time"`
}
