package domain

import "errors"

var (
	// ErrTitleRequired is returned when a task title is missing or blank.
	ErrTitleRequired = errors.New("title is required")
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrUnavailable is returned when the task store is not configured or reachable.
	ErrUnavailable = errors.New("task store unavailable")
)
