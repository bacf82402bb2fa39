package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"tasks-api/domain"
)

const (
	tasksPartition = "tasks"
	edmDateTime    = "Edm.DateTime"
)

type tableAPI interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Tables stores tasks in a single Azure Storage table partition.
type Tables struct {
	table tableAPI
	now   func() time.Time
}

// NewTables creates a Tables store from the given connection string.
func NewTables(connStr, tableName string) (*Tables, error) {
	svc, err := newTablesService(connStr)
	if err != nil {
		return nil, err
	}
	return newTables(svc.NewClient(tableName)), nil
}

func newTables(table tableAPI) *Tables {
	return &Tables{table: table, now: nextTimestamp}
}

func newTablesService(connStr string) (*aztables.ServiceClient, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return aztables.NewServiceClientFromConnectionString(connStr, &opts)
}

type taskEntity struct {
	PartitionKey  string    `json:"PartitionKey"`
	RowKey        string    `json:"RowKey"`
	Title         string    `json:"Title"`
	Description   string    `json:"Description"`
	Completed     bool      `json:"Completed"`
	CreatedAt     time.Time `json:"CreatedAt"`
	CreatedAtType string    `json:"CreatedAt@odata.type,omitempty"`
	UpdatedAt     time.Time `json:"UpdatedAt"`
	UpdatedAtType string    `json:"UpdatedAt@odata.type,omitempty"`
}

type taskEntityUpdate struct {
	PartitionKey  string    `json:"PartitionKey"`
	RowKey        string    `json:"RowKey"`
	Title         *string   `json:"Title,omitempty"`
	Description   *string   `json:"Description,omitempty"`
	Completed     *bool     `json:"Completed,omitempty"`
	UpdatedAt     time.Time `json:"UpdatedAt"`
	UpdatedAtType string    `json:"UpdatedAt@odata.type"`
}

func (e taskEntity) toTask() domain.Task {
	return domain.Task{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		Completed:   e.Completed,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
}

func (s *Tables) ListTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	partition := "PartitionKey eq '" + tasksPartition + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &partition})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := sonic.Unmarshal(raw, &ent); err != nil {
				return nil, fmt.Errorf("decode task entity: %w", err)
			}
			tasks = append(tasks, ent.toTask())
		}
	}
	tasks = domain.FilterTasks(tasks, filter)
	domain.SortNewestFirst(tasks)
	return tasks, nil
}

func (s *Tables) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	title, desc, err := in.Normalize()
	if err != nil {
		return domain.Task{}, err
	}
	now := s.now()
	ent := taskEntity{
		PartitionKey:  tasksPartition,
		RowKey:        uuid.NewString(),
		Title:         title,
		Description:   desc,
		CreatedAt:     now,
		CreatedAtType: edmDateTime,
		UpdatedAt:     now,
		UpdatedAtType: edmDateTime,
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, fmt.Errorf("add task entity: %w", err)
	}
	return ent.toTask(), nil
}

func (s *Tables) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return domain.Task{}, err
	}
	if !validRowKey(id) {
		return domain.Task{}, domain.ErrNotFound
	}
	upd := taskEntityUpdate{
		PartitionKey:  tasksPartition,
		RowKey:        id,
		Title:         patch.Title,
		Description:   patch.Description,
		Completed:     patch.Completed,
		UpdatedAt:     s.now(),
		UpdatedAtType: edmDateTime,
	}
	payload, err := sonic.Marshal(upd)
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("update task entity: %w", err)
	}
	return s.getTask(ctx, id)
}

func (s *Tables) getTask(ctx context.Context, id string) (domain.Task, error) {
	resp, err := s.table.GetEntity(ctx, tasksPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("get task entity: %w", err)
	}
	var ent taskEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, fmt.Errorf("decode task entity: %w", err)
	}
	return ent.toTask(), nil
}

func (s *Tables) DeleteTask(ctx context.Context, id string) error {
	if !validRowKey(id) {
		return domain.ErrNotFound
	}
	et := azcore.ETagAny
	if _, err := s.table.DeleteEntity(ctx, tasksPartition, id, &aztables.DeleteEntityOptions{IfMatch: &et}); err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete task entity: %w", err)
	}
	return nil
}

// Ping fetches at most one entity to check the table is reachable.
func (s *Tables) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	if _, err := pager.NextPage(ctx); err != nil {
		return fmt.Errorf("ping tasks table: %w", err)
	}
	return nil
}

// Row keys are always UUIDs; anything else cannot exist and may contain
// characters the service rejects.
func validRowKey(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
