// Command event-relay drains task change events from the events queue and
// republishes each one on a Redis channel for live subscribers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasks-api/config"
	"tasks-api/domain"
	"tasks-api/storage"
	"tasks-api/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := telemetry.NewLogger(cfg, os.Stdout)

	if cfg.EventsQueue == "" || cfg.QueueConnectionString == "" || cfg.RedisURL == "" {
		logger.Fatal("missing events queue or redis config")
	}

	consumer, err := storage.NewEventConsumer(cfg.QueueConnectionString, cfg.EventsQueue, logger)
	if err != nil {
		logger.Fatalf("queue client: %v", err)
	}
	opts, err := storage.RedisOptions(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	rc := redis.NewClient(opts)
	defer rc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(log.Fields{"queue": cfg.EventsQueue, "channel": cfg.EventsChannel}).Info("event relay starting")
	err = consumer.Run(ctx, func(ctx context.Context, ev domain.TaskEvent) error {
		return processEvent(ctx, rc, cfg.EventsChannel, ev, logger)
	})
	if err != nil {
		logger.WithError(err).Error("consumer stopped")
	}
	logger.Info("event relay stopped")
}
