package main

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasks-api/domain"
)

// processEvent fans a committed task change out to live subscribers of
// channel. A failed publish is returned so the queue redelivers the event.
func processEvent(ctx context.Context, rc *redis.Client, channel string, ev domain.TaskEvent, logger *log.Logger) error {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	if err := rc.Publish(ctx, channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, channel, err)
	}
	logger.WithFields(log.Fields{
		"event":   ev.Type,
		"task_id": ev.EntityID,
		"channel": channel,
	}).Info("task update published")
	return nil
}
