package domain

import "context"

// StoredTask pairs a task with the opaque concurrency token the store issued
// for it. The ETag must be passed back on UpdateTask so two concurrent
// read-modify-write cycles cannot silently overwrite each other.
type StoredTask struct {
	Task
	ETag string
}

// Store is durable keyed storage partitioned by owner. Implementations must
// behave identically for a missing id and an id owned by someone else, and
// must never reuse an id after deletion.
type Store interface {
	// InsertTask persists a new task. It returns *ConflictError when the id
	// is already taken.
	InsertTask(ctx context.Context, t Task) error

	// GetTask returns the task only when it belongs to ownerID; (nil, nil)
	// otherwise.
	GetTask(ctx context.Context, ownerID, id string) (*StoredTask, error)

	// ListTasks returns every task owned by ownerID in id order.
	ListTasks(ctx context.Context, ownerID string) ([]Task, error)

	// UpdateTask replaces the stored record if its current ETag still equals
	// etag, returning ErrConcurrencyConflict otherwise and ErrTaskNotFound
	// when the record is gone.
	UpdateTask(ctx context.Context, t Task, etag string) error

	// DeleteTask removes the record, reporting whether anything was removed.
	// Deleting an absent id is not an error.
	DeleteTask(ctx context.Context, ownerID, id string) (bool, error)
}
