package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"tasks-api/web"
)

// NewServer builds the Echo instance with middleware, serializers and all
// routes installed.
func NewServer(store TaskStore, logger *log.Logger) *echo.Echo {
	if logger == nil {
		logger = log.StandardLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	e.Renderer = web.Renderer{}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(Tracing())
	e.Use(RequestLogger(logger))
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	Register(e, store, logger)
	return e
}
