package api

import (
	"context"

	"todo-api/domain"
)

// TaskService is the business core consumed by the handlers. Handlers do no
// validation or authorization of task data themselves beyond matching the
// verified identity against the path.
type TaskService interface {
	CreateTask(ctx context.Context, ownerID, id string, req domain.CreateTaskRequest) (domain.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (domain.Task, error)
	ListTasks(ctx context.Context, ownerID string, filter domain.Filter, sort domain.Sort, page domain.Page) ([]domain.Task, int, error)
	UpdateTask(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (domain.Task, error)
	ToggleCompletion(ctx context.Context, ownerID, id string, desired *bool) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) (bool, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper maps create idempotency keys to task ids so client retries do not
// produce duplicate tasks.
type Deduper interface {
	// Register records key -> taskID if the key is new and returns
	// (taskID, true). For a replayed key it returns the originally recorded
	// id and false.
	Register(ctx context.Context, userID, key, taskID string) (string, bool, error)
	// Remove deletes a previously registered key, used when the create fails
	// downstream so the client may retry.
	Remove(ctx context.Context, userID, key string) error
}
