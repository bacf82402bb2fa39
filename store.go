package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasks-api/api"
	"tasks-api/config"
	"tasks-api/storage"
)

const startupPingTimeout = 5 * time.Second

type closer func(context.Context) error

// openStore builds the task store from cfg. It never fails: a backend that
// cannot be constructed is replaced by storage.Unavailable so the server can
// still start and report the problem per request.
func openStore(ctx context.Context, cfg config.Config, logger *log.Logger) (api.TaskStore, []closer) {
	var closers []closer
	store := openBackend(ctx, cfg, logger, &closers)

	if cfg.RedisURL != "" {
		opts, err := storage.RedisOptions(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("invalid redis connection string; list cache disabled")
		} else {
			rc := redis.NewClient(opts)
			closers = append(closers, func(context.Context) error { return rc.Close() })
			store = storage.NewCache(store, rc, cfg.CacheTTL)
			logger.WithField("ttl", cfg.CacheTTL.String()).Info("task list cache enabled")
		}
	}

	if cfg.EventsQueue != "" {
		pub, err := storage.NewQueuePublisher(cfg.QueueConnectionString, cfg.EventsQueue)
		if err != nil {
			logger.WithError(err).Warn("task events queue unavailable; change events disabled")
		} else {
			store = storage.NewNotifier(store, pub, logger)
			logger.WithField("queue", cfg.EventsQueue).Info("task change events enabled")
		}
	}
	return store, closers
}

func openBackend(ctx context.Context, cfg config.Config, logger *log.Logger, closers *[]closer) api.TaskStore {
	var store api.TaskStore
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory task store; data is lost on restart")
		return storage.NewMemory()
	case config.BackendTables:
		t, err := storage.NewTables(cfg.ConnectionString, cfg.TasksTable)
		if err != nil {
			logger.WithError(err).Error("tables storage client")
			return storage.Unavailable{Reason: "tables client: " + err.Error()}
		}
		store = t
	case config.BackendMongo:
		m, err := storage.NewMongo(ctx, cfg.ConnectionString, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			logger.WithError(err).Error("mongo storage client")
			return storage.Unavailable{Reason: "mongo client: " + err.Error()}
		}
		*closers = append(*closers, m.Close)
		store = m
	default:
		logger.Error("no storage connection string configured; task data is unavailable")
		return storage.Unavailable{Reason: "no storage connection string configured"}
	}

	// An unreachable backend is kept: requests fail until it comes back.
	if p, ok := store.(api.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			logger.WithError(err).WithField("backend", cfg.Backend).Error("task store not reachable at startup")
		} else {
			logger.WithField("backend", cfg.Backend).Info("task store connected")
		}
	}
	return store
}
