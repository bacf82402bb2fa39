package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tasks-api/domain"
)

func titles(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMemoryScenario(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	milk, err := m.CreateTask(ctx, domain.NewTask{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("create milk: %v", err)
	}
	if milk.ID == "" || milk.Completed || milk.Description != domain.DefaultDescription {
		t.Fatalf("unexpected created task: %#v", milk)
	}
	if !milk.CreatedAt.Equal(milk.UpdatedAt) {
		t.Fatalf("createdAt and updatedAt must match on create")
	}

	evening := "evening"
	dog, err := m.CreateTask(ctx, domain.NewTask{Title: "Walk dog", Description: &evening})
	if err != nil {
		t.Fatalf("create dog: %v", err)
	}

	all, _ := m.ListTasks(ctx, "")
	if got := titles(all); !equalStrings(got, []string{"Walk dog", "Buy milk"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	filtered, _ := m.ListTasks(ctx, "MILK")
	if got := titles(filtered); !equalStrings(got, []string{"Buy milk"}) {
		t.Fatalf("unexpected filter result: %v", got)
	}
	byDescription, _ := m.ListTasks(ctx, "Even")
	if got := titles(byDescription); !equalStrings(got, []string{"Walk dog"}) {
		t.Fatalf("unexpected description match: %v", got)
	}

	done := true
	updated, err := m.UpdateTask(ctx, milk.ID, domain.TaskPatch{Completed: &done})
	if err != nil {
		t.Fatalf("complete milk: %v", err)
	}
	if !updated.Completed || updated.Title != "Buy milk" || updated.Description != milk.Description {
		t.Fatalf("update must only flip completed: %#v", updated)
	}
	if !updated.UpdatedAt.After(milk.UpdatedAt) || !updated.CreatedAt.Equal(milk.CreatedAt) {
		t.Fatalf("unexpected timestamps after update: %#v", updated)
	}

	if err := m.DeleteTask(ctx, dog.ID); err != nil {
		t.Fatalf("delete dog: %v", err)
	}
	all, _ = m.ListTasks(ctx, "")
	if len(all) != 1 || all[0].ID != milk.ID || !all[0].Completed {
		t.Fatalf("unexpected final list: %#v", all)
	}
}

func TestMemoryNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created, _ := m.CreateTask(ctx, domain.NewTask{Title: "keep"})

	done := true
	if _, err := m.UpdateTask(ctx, "missing", domain.TaskPatch{Completed: &done}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := m.DeleteTask(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
	if err := m.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteTask(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected repeated delete to be not found, got %v", err)
	}
}

func TestMemoryValidation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.CreateTask(ctx, domain.NewTask{Title: "   "}); !errors.Is(err, domain.ErrTitleRequired) {
		t.Fatalf("expected ErrTitleRequired, got %v", err)
	}
	if tasks, _ := m.ListTasks(ctx, ""); len(tasks) != 0 {
		t.Fatalf("invalid create must not persist, got %d tasks", len(tasks))
	}

	created, _ := m.CreateTask(ctx, domain.NewTask{Title: "  Buy milk  "})
	if created.Title != "Buy milk" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	blank := " "
	if _, err := m.UpdateTask(ctx, created.ID, domain.TaskPatch{Title: &blank}); !errors.Is(err, domain.ErrTitleRequired) {
		t.Fatalf("expected ErrTitleRequired on blank update, got %v", err)
	}
	tasks, _ := m.ListTasks(ctx, "")
	if tasks[0].Title != "Buy milk" {
		t.Fatalf("rejected update must not change the task: %#v", tasks[0])
	}
}

func TestMemoryFilterWhitespaceIsLiteral(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.CreateTask(ctx, domain.NewTask{Title: "milkshake"})
	_, _ = m.CreateTask(ctx, domain.NewTask{Title: "Buy milk"})

	tests := []struct {
		filter string
		want   []string
	}{
		{filter: " milk", want: []string{"Buy milk"}},
		{filter: "milk ", want: []string{}},
		{filter: "   ", want: []string{}},
		{filter: "", want: []string{"Buy milk", "milkshake"}},
	}
	for _, tt := range tests {
		got, err := m.ListTasks(ctx, tt.filter)
		if err != nil {
			t.Fatalf("list %q: %v", tt.filter, err)
		}
		if !equalStrings(titles(got), tt.want) {
			t.Fatalf("list(%q) = %v, want %v", tt.filter, titles(got), tt.want)
		}
	}
}

func TestMemoryBlankDescriptionUpdateUsesDefault(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	desc := "2l"
	created, _ := m.CreateTask(ctx, domain.NewTask{Title: "Buy milk", Description: &desc})

	blank := "   "
	updated, err := m.UpdateTask(ctx, created.ID, domain.TaskPatch{Description: &blank})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != domain.DefaultDescription {
		t.Fatalf("expected default description, got %q", updated.Description)
	}
}

func TestMemoryEmptyPatchBumpsUpdatedAt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	created, _ := m.CreateTask(ctx, domain.NewTask{Title: "Buy milk"})

	updated, err := m.UpdateTask(ctx, created.ID, domain.TaskPatch{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance")
	}
	if updated.Title != created.Title || updated.Completed != created.Completed {
		t.Fatalf("empty patch must not change fields: %#v", updated)
	}
}

func TestMemoryConcurrentCreates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.CreateTask(ctx, domain.NewTask{Title: "task"}); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()

	tasks, _ := m.ListTasks(ctx, "")
	if len(tasks) != 50 {
		t.Fatalf("expected 50 tasks, got %d", len(tasks))
	}
	seen := make(map[string]bool, len(tasks))
	for i, task := range tasks {
		if seen[task.ID] {
			t.Fatalf("duplicate id %s", task.ID)
		}
		seen[task.ID] = true
		if i > 0 && !tasks[i-1].CreatedAt.After(task.CreatedAt) {
			t.Fatalf("tasks not strictly newest first at %d", i)
		}
	}
}

func TestUnavailableReportsErrUnavailable(t *testing.T) {
	u := Unavailable{Reason: "no connection string"}
	ctx := context.Background()

	if _, err := u.ListTasks(ctx, ""); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("list: %v", err)
	}
	if _, err := u.CreateTask(ctx, domain.NewTask{Title: "x"}); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("create: %v", err)
	}
	if err := u.DeleteTask(ctx, "x"); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("delete: %v", err)
	}
	if err := u.Ping(ctx); err == nil || err.Error() != "task store unavailable: no connection string" {
		t.Fatalf("unexpected ping error: %v", err)
	}
}
