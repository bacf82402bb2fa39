package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasks-api/domain"
	"tasks-api/web"
)

const (
	msgReady         = "Tasks API is up and ready."
	msgInvalidBody   = "Invalid request body."
	msgTitleRequired = "Title is required."
	msgNotFound      = "Task not found."
	msgListFailed    = "Error retrieving tasks."
	msgCreateFailed  = "Error creating task."
	msgUpdateFailed  = "Error updating task."
	msgDeleteFailed  = "Error deleting task."
	msgUnavailable   = "Task store unavailable."

	pingTimeout = 2 * time.Second
)

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, store TaskStore, logger *log.Logger) {
	e.GET("/", root)
	e.GET("/healthz", healthz(store, logger))

	e.GET("/api/tasks", listTasks(store, logger))
	e.POST("/api/tasks", createTask(store, logger))
	e.PUT("/api/tasks/:id", updateTask(store, logger))
	e.DELETE("/api/tasks/:id", deleteTask(store, logger))

	e.GET("/app", page)
	e.GET("/app/tasks", taskList(store, logger))
	e.StaticFS("/static", web.Static())
}

func root(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: msgReady})
}

func healthz(store TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := store.(Pinger)
		if !ok {
			return c.JSON(http.StatusOK, messageResponse{Message: "ok"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logger.WithError(err).Warn("health check failed")
			return c.JSON(http.StatusServiceUnavailable, messageResponse{Message: msgUnavailable})
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "ok"})
	}
}

func listTasks(store TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newListRequestMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		filter := c.QueryParam("q")
		metrics.SetFilterProvided(filter != "")

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, filter)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.Fail("storage", fetchErr)
			return respondError(c, logger, fetchErr, msgListFailed)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasks)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.Fail("encode_response", err)
		}
		return err
	}
}

func createTask(store TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.NewTask
		if err := decodeBody(c.Request().Body, &in); err != nil {
			logger.WithError(err).Debug("create task: invalid body")
			return c.JSON(http.StatusBadRequest, messageResponse{Message: msgInvalidBody})
		}
		task, err := store.CreateTask(c.Request().Context(), in)
		if err != nil {
			return respondError(c, logger, err, msgCreateFailed)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(store TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		var patch domain.TaskPatch
		if err := decodeBody(c.Request().Body, &patch); err != nil {
			logger.WithError(err).WithField("task_id", id).Debug("update task: invalid body")
			return c.JSON(http.StatusBadRequest, messageResponse{Message: msgInvalidBody})
		}
		task, err := store.UpdateTask(c.Request().Context(), id, patch)
		if err != nil {
			return respondError(c, logger.WithField("task_id", id), err, msgUpdateFailed)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := store.DeleteTask(c.Request().Context(), id); err != nil {
			return respondError(c, logger.WithField("task_id", id), err, msgDeleteFailed)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func page(c echo.Context) error {
	return c.Render(http.StatusOK, web.PageTemplate, nil)
}

// taskList serves the rendered list for the browser client.
func taskList(store TaskStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks, err := store.ListTasks(c.Request().Context(), c.QueryParam("q"))
		if err != nil {
			logger.WithError(err).Error("render task list failed")
			return c.Render(http.StatusInternalServerError, web.ErrorTemplate, web.ConnectivityMessage)
		}
		return c.Render(http.StatusOK, web.TasksTemplate, tasks)
	}
}

// fieldLogger is satisfied by both *log.Logger and *log.Entry.
type fieldLogger interface {
	WithError(err error) *log.Entry
}

// respondError maps store errors to a status and a generic message. Details
// are logged and never sent to the client.
func respondError(c echo.Context, logger fieldLogger, err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrTitleRequired):
		logger.WithError(err).Warn("rejected task")
		return c.JSON(http.StatusBadRequest, messageResponse{Message: msgTitleRequired})
	case errors.Is(err, domain.ErrNotFound):
		logger.WithError(err).Warn("task not found")
		return c.JSON(http.StatusNotFound, messageResponse{Message: msgNotFound})
	default:
		logger.WithError(err).Error(fallback)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: fallback})
	}
}
