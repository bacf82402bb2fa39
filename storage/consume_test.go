package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/sirupsen/logrus/hooks/test"

	"tasks-api/domain"
)

// memQueue is an in-memory queue shared by the publisher and consumer fakes.
type memQueue struct {
	mu       sync.Mutex
	next     int
	messages map[string]string
	order    []string
	deqErr   error
}

func newMemQueue() *memQueue {
	return &memQueue{messages: make(map[string]string)}
}

func (q *memQueue) EnqueueMessage(_ context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.next++
	id := string(rune('a' + q.next))
	q.messages[id] = content
	q.order = append(q.order, id)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func (q *memQueue) DequeueMessages(_ context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deqErr != nil {
		return azqueue.DequeueMessagesResponse{}, q.deqErr
	}
	limit := len(q.order)
	if o != nil && o.NumberOfMessages != nil && int(*o.NumberOfMessages) < limit {
		limit = int(*o.NumberOfMessages)
	}
	var resp azqueue.DequeueMessagesResponse
	for _, id := range q.order[:limit] {
		id, text := id, q.messages[id]
		receipt := "r-" + id
		resp.Messages = append(resp.Messages, &azqueue.DequeuedMessage{MessageID: &id, PopReceipt: &receipt, MessageText: &text})
	}
	return resp, nil
}

func (q *memQueue) DeleteMessage(_ context.Context, id, receipt string, _ *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if receipt != "r-"+id {
		return azqueue.DeleteMessageResponse{}, errors.New("pop receipt mismatch")
	}
	delete(q.messages, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return azqueue.DeleteMessageResponse{}, nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func TestConsumerReceivesNotifierEvents(t *testing.T) {
	q := newMemQueue()
	n := NewNotifier(NewMemory(), &QueuePublisher{queue: q}, nil)
	ctx := context.Background()

	created, _ := n.CreateTask(ctx, domain.NewTask{Title: "Buy milk"})
	if err := n.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got []domain.TaskEvent
	c := newEventConsumer(q, nil)
	handled, err := c.Poll(ctx, func(_ context.Context, ev domain.TaskEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if handled != 2 || len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", handled)
	}
	if got[0].Type != domain.EventTaskCreated || got[0].Task == nil || got[0].Task.Title != "Buy milk" {
		t.Fatalf("unexpected first event %#v", got[0])
	}
	if got[1].Type != domain.EventTaskDeleted || got[1].EntityID != created.ID {
		t.Fatalf("unexpected second event %#v", got[1])
	}
	if q.len() != 0 {
		t.Fatalf("handled messages must be deleted, %d left", q.len())
	}
}

func TestConsumerKeepsFailedAndDropsMalformed(t *testing.T) {
	q := newMemQueue()
	ctx := context.Background()
	_, _ = q.EnqueueMessage(ctx, "not json", nil)
	_, _ = q.EnqueueMessage(ctx, `{"type":"task-created","entityId":"t1"}`, nil)

	logger, hook := test.NewNullLogger()
	c := newEventConsumer(q, logger)
	handled, err := c.Poll(ctx, func(context.Context, domain.TaskEvent) error {
		return errors.New("downstream busy")
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if handled != 0 {
		t.Fatalf("expected nothing handled, got %d", handled)
	}
	if q.len() != 1 {
		t.Fatalf("failed event must stay queued and malformed one must be dropped, %d left", q.len())
	}
	if len(hook.AllEntries()) != 2 {
		t.Fatalf("expected two warnings, got %d", len(hook.AllEntries()))
	}
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	q := newMemQueue()
	q.deqErr = errors.New("queue unreachable")
	logger, hook := test.NewNullLogger()
	c := newEventConsumer(q, logger)
	c.idle = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx, func(context.Context, domain.TaskEvent) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(hook.AllEntries()) == 0 {
		t.Fatalf("expected dequeue failures to be logged")
	}
}
