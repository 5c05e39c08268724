package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"todo-api/domain"
)

// TableStore persists tasks in Azure Table storage, one partition per owner,
// and publishes task change events to a queue. The partition scheme is what
// makes wrong-owner lookups indistinguishable from missing rows: a foreign
// task simply lives in a partition the caller never reads.
type TableStore struct {
	taskTable  *aztables.Client
	eventQueue *azqueue.QueueClient
}

// New creates a TableStore from the given connection string.
func New(connStr, tasksTable, eventsQueue string) (*TableStore, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &TableStore{taskTable: svc.NewClient(tasksTable), eventQueue: eq}, nil
}

// taskEntity is the table representation of a task. Timestamps are stored as
// RFC 3339 strings and tags as a JSON array, since table properties have no
// native collection type.
type taskEntity struct {
	aztables.Entity
	ETag        string `json:"odata.etag,omitempty"`
	Title       string `json:"Title"`
	Description string `json:"Description,omitempty"`
	Completed   bool   `json:"Completed"`
	Priority    string `json:"Priority"`
	Tags        string `json:"Tags"`
	DueDate     string `json:"DueDate,omitempty"`
	Recurrence  string `json:"Recurrence"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
	CompletedAt string `json:"CompletedAt,omitempty"`
}

func encodeTaskEntity(t domain.Task) (taskEntity, error) {
	tags, err := sonic.MarshalString(t.Tags)
	if err != nil {
		return taskEntity{}, err
	}
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    string(t.Priority),
		Tags:        tags,
		Recurrence:  string(t.Recurrence),
		CreatedAt:   t.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339Nano),
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.Format(time.RFC3339Nano)
	}
	if t.CompletedAt != nil {
		ent.CompletedAt = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return ent, nil
}

func decodeTaskEntity(data []byte) (*domain.StoredTask, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Completed:   ent.Completed,
		Priority:    domain.Priority(ent.Priority),
		Recurrence:  domain.Recurrence(ent.Recurrence),
	}
	if ent.Tags != "" {
		if err := sonic.UnmarshalString(ent.Tags, &t.Tags); err != nil {
			return nil, err
		}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, ent.CreatedAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, ent.UpdatedAt); err != nil {
		return nil, err
	}
	if ent.DueDate != "" {
		due, err := time.Parse(time.RFC3339Nano, ent.DueDate)
		if err != nil {
			return nil, err
		}
		t.DueDate = &due
	}
	if ent.CompletedAt != "" {
		at, err := time.Parse(time.RFC3339Nano, ent.CompletedAt)
		if err != nil {
			return nil, err
		}
		t.CompletedAt = &at
	}
	return &domain.StoredTask{Task: t, ETag: ent.ETag}, nil
}

func (s *TableStore) InsertTask(ctx context.Context, t domain.Task) error {
	ent, err := encodeTaskEntity(t)
	if err != nil {
		return &domain.StorageError{Op: "insert", Retryable: false, Err: err}
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return &domain.StorageError{Op: "insert", Retryable: false, Err: err}
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 409 {
			return &domain.ConflictError{ID: t.ID}
		}
		return classify("insert", err)
	}
	return nil
}

func (s *TableStore) GetTask(ctx context.Context, ownerID, id string) (*domain.StoredTask, error) {
	resp, err := s.taskTable.GetEntity(ctx, ownerID, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, classify("get", err)
	}
	st, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return nil, &domain.StorageError{Op: "get", Retryable: false, Err: err}
	}
	return st, nil
}

func (s *TableStore) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(ownerID, "'", "''") + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("list", err)
		}
		for _, raw := range resp.Entities {
			st, err := decodeTaskEntity(raw)
			if err != nil {
				return nil, &domain.StorageError{Op: "list", Retryable: false, Err: err}
			}
			tasks = append(tasks, st.Task)
		}
	}
	return tasks, nil
}

func (s *TableStore) UpdateTask(ctx context.Context, t domain.Task, etag string) error {
	ent, err := encodeTaskEntity(t)
	if err != nil {
		return &domain.StorageError{Op: "update", Retryable: false, Err: err}
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return &domain.StorageError{Op: "update", Retryable: false, Err: err}
	}
	et := azcore.ETag(etag)
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch respErr.StatusCode {
			case 412:
				return domain.ErrConcurrencyConflict
			case 404:
				return domain.ErrTaskNotFound
			}
		}
		return classify("update", err)
	}
	return nil
}

func (s *TableStore) DeleteTask(ctx context.Context, ownerID, id string) (bool, error) {
	if _, err := s.taskTable.DeleteEntity(ctx, ownerID, id, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return false, nil
		}
		return false, classify("delete", err)
	}
	return true, nil
}

// PublishEvents sends task change events to the events queue.
func (s *TableStore) PublishEvents(ctx context.Context, userID string, events []domain.Event) error {
	for _, ev := range events {
		data, err := sonic.MarshalString(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, data, nil); err != nil {
			return classify("enqueue", err)
		}
	}
	return nil
}

// classify maps a transport failure onto the storage error taxonomy.
// Timeouts and transient HTTP statuses are retryable; everything else is
// surfaced as a permanent storage failure.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.StorageError{Op: op, Retryable: true, Err: err}
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 408, 429, 500, 502, 503, 504:
			return &domain.StorageError{Op: op, Retryable: true, Err: err}
		}
	}
	return &domain.StorageError{Op: op, Retryable: false, Err: err}
}

var _ domain.Store = (*TableStore)(nil)
var _ domain.EventPublisher = (*TableStore)(nil)
