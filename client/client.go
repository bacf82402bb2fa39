// Package client talks to the tasks API over HTTP and drives a view the way
// the browser front-end does.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"tasks-api/domain"
)

// StatusError is returned when the API answers with an unexpected status.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Message)
}

// Client wraps http.Client with helpers for the task endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{}}
}

// ListTasks fetches the tasks matching filter, newest first.
func (c *Client) ListTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	path := "/api/tasks"
	if filter != "" {
		path += "?q=" + url.QueryEscape(filter)
	}
	var tasks []domain.Task
	if err := c.do(ctx, "list tasks", http.MethodGet, path, nil, http.StatusOK, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a task. An empty description is sent as absent.
func (c *Client) CreateTask(ctx context.Context, title, description string) (domain.Task, error) {
	in := domain.NewTask{Title: title}
	if description != "" {
		in.Description = &description
	}
	var task domain.Task
	err := c.do(ctx, "create task", http.MethodPost, "/api/tasks", in, http.StatusCreated, &task)
	return task, err
}

// UpdateTask applies patch to the task with the given id.
func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, "update task", http.MethodPut, "/api/tasks/"+url.PathEscape(id), patch, http.StatusOK, &task)
	return task, err
}

// DeleteTask removes the task with the given id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "delete task", http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, want int, out any) error {
	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		se := &StatusError{Op: op, Code: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10)); err == nil && sonic.Unmarshal(data, &msg) == nil {
			se.Message = msg.Message
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
