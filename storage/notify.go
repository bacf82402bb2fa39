package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"tasks-api/domain"
)

const publishTimeout = 5 * time.Second

// Publisher delivers task change events.
type Publisher interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

type queueAPI interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueuePublisher writes task events as JSON messages to an Azure Storage queue.
type QueuePublisher struct {
	queue queueAPI
}

// NewQueuePublisher creates a publisher for the named queue.
func NewQueuePublisher(connStr, queueName string) (*QueuePublisher, error) {
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
	return &QueuePublisher{queue: q}, nil
}

func (p *QueuePublisher) Publish(ctx context.Context, ev domain.TaskEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Notifier publishes an event after every successful mutation of the wrapped
// store. Publishing is best effort and never fails the mutation.
type Notifier struct {
	base      backend
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

// NewNotifier wraps base so committed changes are sent to publisher.
func NewNotifier(base backend, publisher Publisher, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifier{base: base, publisher: publisher, logger: logger, now: time.Now}
}

func (n *Notifier) ListTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	return n.base.ListTasks(ctx, filter)
}

func (n *Notifier) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	t, err := n.base.CreateTask(ctx, in)
	if err != nil {
		return domain.Task{}, err
	}
	n.publish(ctx, domain.EventTaskCreated, t.ID, &t)
	return t, nil
}

func (n *Notifier) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := n.base.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	n.publish(ctx, domain.EventTaskUpdated, t.ID, &t)
	return t, nil
}

func (n *Notifier) DeleteTask(ctx context.Context, id string) error {
	if err := n.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	n.publish(ctx, domain.EventTaskDeleted, id, nil)
	return nil
}

func (n *Notifier) Ping(ctx context.Context) error {
	if p, ok := n.base.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (n *Notifier) publish(ctx context.Context, typ, id string, t *domain.Task) {
	if n.publisher == nil {
		return
	}
	ev := domain.TaskEvent{Type: typ, EntityID: id, Task: t, Time: n.now().UnixNano()}
	// The request may be finishing; give the publish its own deadline.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.publisher.Publish(pubCtx, ev); err != nil {
		n.logger.WithError(err).WithFields(log.Fields{
			"event":   typ,
			"task_id": id,
		}).Warn("task event publish failed")
	}
}
