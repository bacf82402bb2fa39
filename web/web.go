// Package web renders the task list and page shell and serves the browser
// assets. Rendering is a pure function of its input.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/labstack/echo/v4"

	"tasks-api/domain"
)

// Template names understood by Renderer.
const (
	PageTemplate  = "index.html.tmpl"
	TasksTemplate = "tasks.html.tmpl"
	ErrorTemplate = "error.html.tmpl"
)

// ConnectivityMessage replaces the task list when it cannot be loaded.
const ConnectivityMessage = "Could not connect to the task server."

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// RenderTasks writes the markup for tasks in the given order. An empty list
// renders a placeholder.
func RenderTasks(w io.Writer, tasks []domain.Task) error {
	return templates.ExecuteTemplate(w, TasksTemplate, tasks)
}

// RenderError writes the markup shown in place of the list on failure.
func RenderError(w io.Writer, message string) error {
	return templates.ExecuteTemplate(w, ErrorTemplate, message)
}

// RenderPage writes the full page shell: search input, create form and an
// empty list container filled in by the browser script.
func RenderPage(w io.Writer) error {
	return templates.ExecuteTemplate(w, PageTemplate, nil)
}

// Static returns the browser assets rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer exposes the page, task list and error views to echo's c.Render.
type Renderer struct{}

func (Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	switch name {
	case PageTemplate:
		return RenderPage(w)
	case TasksTemplate:
		tasks, ok := data.([]domain.Task)
		if !ok {
			return fmt.Errorf("render %s: unexpected data %T", name, data)
		}
		return RenderTasks(w, tasks)
	case ErrorTemplate:
		message, ok := data.(string)
		if !ok {
			return fmt.Errorf("render %s: unexpected data %T", name, data)
		}
		return RenderError(w, message)
	default:
		return fmt.Errorf("unknown template %q", name)
	}
}
