package main

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"tasks-api/config"
	"tasks-api/storage"
	"tasks-api/telemetry"
)

const initTimeout = time.Minute

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := telemetry.NewLogger(cfg, os.Stdout)
	logger.WithField("backend", cfg.Backend).Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	switch cfg.Backend {
	case config.BackendTables:
		if err := storage.CreateTable(ctx, cfg.ConnectionString, cfg.TasksTable); err != nil {
			logger.Fatalf("create table %s: %v", cfg.TasksTable, err)
		}
	case config.BackendMongo:
		m, err := storage.NewMongo(ctx, cfg.ConnectionString, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			logger.Fatalf("mongo: %v", err)
		}
		defer func() { _ = m.Close(context.Background()) }()
		if err := m.EnsureIndexes(ctx); err != nil {
			logger.Fatalf("create indexes: %v", err)
		}
	default:
		logger.Fatalf("nothing to initialise for backend %q", cfg.Backend)
	}

	if cfg.EventsQueue != "" && cfg.QueueConnectionString != "" {
		if err := storage.CreateQueue(ctx, cfg.QueueConnectionString, cfg.EventsQueue); err != nil {
			logger.Fatalf("create queue %s: %v", cfg.EventsQueue, err)
		}
	}

	logger.Info("storage init complete")
}
