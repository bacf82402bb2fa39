package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"tasks-api/domain"
)

const (
	consumeBatchSize   = 16
	consumeIdleBackoff = time.Second
)

type dequeueAPI interface {
	DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// EventHandler processes one task event. Returning an error leaves the
// message on the queue so it is delivered again.
type EventHandler func(ctx context.Context, ev domain.TaskEvent) error

// EventConsumer drains task events published by Notifier.
type EventConsumer struct {
	queue  dequeueAPI
	logger *log.Logger
	idle   time.Duration
}

// NewEventConsumer creates a consumer for the named queue.
func NewEventConsumer(connStr, queueName string, logger *log.Logger) (*EventConsumer, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 30,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return newEventConsumer(q, logger), nil
}

func newEventConsumer(q dequeueAPI, logger *log.Logger) *EventConsumer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &EventConsumer{queue: q, logger: logger, idle: consumeIdleBackoff}
}

// Run polls until ctx is cancelled, backing off while the queue is empty or
// unreachable.
func (c *EventConsumer) Run(ctx context.Context, handle EventHandler) error {
	for {
		n, err := c.Poll(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.WithError(err).Warn("dequeue task events failed")
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.idle):
			}
		}
	}
}

// Poll receives one batch and returns how many messages were handled.
// Messages that are not valid events are deleted without being handled.
func (c *EventConsumer) Poll(ctx context.Context, handle EventHandler) (int, error) {
	n := int32(consumeBatchSize)
	resp, err := c.queue.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{NumberOfMessages: &n})
	if err != nil {
		return 0, err
	}

	handled := 0
	var errs []error
	for _, msg := range resp.Messages {
		if msg == nil || msg.MessageID == nil || msg.PopReceipt == nil {
			continue
		}
		entry := c.logger.WithField("message_id", *msg.MessageID)

		var ev domain.TaskEvent
		if msg.MessageText == nil || sonic.Unmarshal([]byte(*msg.MessageText), &ev) != nil || ev.Type == "" {
			entry.Warn("dropping malformed task event")
		} else if err := handle(ctx, ev); err != nil {
			entry.WithError(err).WithField("event", ev.Type).Warn("task event handler failed")
			continue
		} else {
			handled++
		}

		if _, err := c.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return handled, errors.Join(errs...)
}
