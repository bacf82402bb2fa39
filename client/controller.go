package client

import (
	"bytes"
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"tasks-api/domain"
	"tasks-api/web"
)

// ConnectivityMessage is shown in place of the list when it cannot be loaded.
const ConnectivityMessage = web.ConnectivityMessage

// TaskAPI is the set of remote calls the controller makes.
type TaskAPI interface {
	ListTasks(ctx context.Context, filter string) ([]domain.Task, error)
	CreateTask(ctx context.Context, title, description string) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// View receives everything the controller wants displayed.
type View interface {
	ShowTasks(tasks []domain.Task)
	ShowError(message string)
	ResetForm()
}

// Controller keeps the view in sync with the server. Each action is a single
// request with no retry, and every successful mutation is followed by a full
// reload using the current search text.
type Controller struct {
	api    TaskAPI
	view   View
	logger *log.Logger

	mu     sync.Mutex
	search string
}

// NewController creates a controller for view backed by api.
func NewController(api TaskAPI, view View, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{api: api, view: view, logger: logger}
}

// Load fetches the list for the current search text. On failure the list is
// replaced by ConnectivityMessage.
func (c *Controller) Load(ctx context.Context) error {
	filter := c.SearchText()
	tasks, err := c.api.ListTasks(ctx, filter)
	if err != nil {
		c.logger.WithError(err).WithField("filter", filter).Error("load tasks failed")
		c.view.ShowError(ConnectivityMessage)
		return err
	}
	c.view.ShowTasks(tasks)
	return nil
}

// Search records the search text and reloads immediately.
func (c *Controller) Search(ctx context.Context, text string) error {
	c.mu.Lock()
	c.search = text
	c.mu.Unlock()
	return c.Load(ctx)
}

// SearchText returns the current search text.
func (c *Controller) SearchText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.search
}

// Create submits the form values. The form is reset only on success.
func (c *Controller) Create(ctx context.Context, title, description string) error {
	if _, err := c.api.CreateTask(ctx, title, description); err != nil {
		c.logger.WithError(err).Error("create task failed")
		return err
	}
	c.view.ResetForm()
	return c.Load(ctx)
}

// Toggle sets the completion state of a task.
func (c *Controller) Toggle(ctx context.Context, id string, completed bool) error {
	if _, err := c.api.UpdateTask(ctx, id, domain.TaskPatch{Completed: &completed}); err != nil {
		c.logger.WithError(err).WithField("task_id", id).Error("update task failed")
		return err
	}
	return c.Load(ctx)
}

// Delete removes a task.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.api.DeleteTask(ctx, id); err != nil {
		c.logger.WithError(err).WithField("task_id", id).Error("delete task failed")
		return err
	}
	return c.Load(ctx)
}

// HTMLView keeps the markup the browser would display, rendered with the
// same templates the server uses.
type HTMLView struct {
	mu     sync.Mutex
	markup string
	resets int
}

func (v *HTMLView) ShowTasks(tasks []domain.Task) {
	var buf bytes.Buffer
	if err := web.RenderTasks(&buf, tasks); err != nil {
		v.ShowError(err.Error())
		return
	}
	v.set(buf.String())
}

func (v *HTMLView) ShowError(message string) {
	var buf bytes.Buffer
	_ = web.RenderError(&buf, message)
	v.set(buf.String())
}

func (v *HTMLView) ResetForm() {
	v.mu.Lock()
	v.resets++
	v.mu.Unlock()
}

// Markup returns the last rendered list or error.
func (v *HTMLView) Markup() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.markup
}

// FormResets reports how many times the create form was cleared.
func (v *HTMLView) FormResets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resets
}

func (v *HTMLView) set(markup string) {
	v.mu.Lock()
	v.markup = markup
	v.mu.Unlock()
}
