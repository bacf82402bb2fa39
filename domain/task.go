package domain

import (
	"sort"
	"strings"
	"time"
)

// DefaultDescription is stored when a task is created without a description.
const DefaultDescription = "No description"

// Task represents a single to-do item.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewTask carries the fields accepted on creation.
type NewTask struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Normalize validates the input and returns the title and description to persist.
func (n NewTask) Normalize() (title, description string, err error) {
	title = strings.TrimSpace(n.Title)
	if title == "" {
		return "", "", ErrTitleRequired
	}
	description = DefaultDescription
	if n.Description != nil {
		if d := strings.TrimSpace(*n.Description); d != "" {
			description = d
		}
	}
	return title, description, nil
}

// Normalize trims provided text fields, rejects a blank title and replaces a
// blank description with DefaultDescription, as on creation.
func (p TaskPatch) Normalize() (TaskPatch, error) {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return TaskPatch{}, ErrTitleRequired
		}
		p.Title = &t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if d == "" {
			d = DefaultDescription
		}
		p.Description = &d
	}
	return p, nil
}

// Apply merges the patch into t and stamps UpdatedAt.
func (p TaskPatch) Apply(t Task, now time.Time) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	t.UpdatedAt = now
	return t
}

// Matches reports whether the title or description contains filter,
// ignoring case. Whitespace in filter is significant; only the empty filter
// matches everything.
func (t Task) Matches(filter string) bool {
	if filter == "" {
		return true
	}
	filter = strings.ToLower(filter)
	return strings.Contains(strings.ToLower(t.Title), filter) ||
		strings.Contains(strings.ToLower(t.Description), filter)
}

// FilterTasks returns the tasks matching filter, preserving order.
func FilterTasks(tasks []Task, filter string) []Task {
	if filter == "" {
		return tasks
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Matches(filter) {
			out = append(out, t)
		}
	}
	return out
}

// SortNewestFirst orders tasks by creation time descending, breaking ties by id.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
}
