package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"tasks-api/api"
	"tasks-api/config"
	"tasks-api/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := telemetry.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

// run serves until ctx is cancelled or the listener fails, then shuts
// everything down. A listener failure is returned after cleanup.
func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	shutdownTracing := telemetry.SetupTracing(logger, cfg.TraceLog)
	store, closers := openStore(ctx, cfg, logger)
	e := api.NewServer(store, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{"addr": cfg.Addr(), "backend": cfg.Backend}).Info("tasks api listening")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	for _, c := range closers {
		if err := c(shutdownCtx); err != nil {
			logger.WithError(err).Warn("close store")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracer shutdown")
	}
	return runErr
}
