package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	storageAttempts     = 3
	storageRetryInitial = 50 * time.Millisecond
)

// CreateTaskRequest carries validated-on-entry input for CreateTask.
type CreateTaskRequest struct {
	Title       string
	Description string
	Priority    Priority
	Tags        []string
	DueDate     *time.Time
	Recurrence  Recurrence
}

// TaskPatch carries partial updates. Nil fields are left untouched; owner
// and id are never patchable.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Tags        *[]string
	DueDate     *time.Time
	Recurrence  *Recurrence
}

func (p TaskPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Tags == nil && p.DueDate == nil && p.Recurrence == nil
}

// TaskService is the sole entry point enforcing validation and business
// rules over the Store. It holds no cross-request state of its own.
type TaskService struct {
	store  Store
	events EventPublisher
	now    func() time.Time
}

// NewTaskService wires the service to its store and event publisher. The
// publisher may be nil, in which case no events are emitted.
func NewTaskService(store Store, events EventPublisher) *TaskService {
	return &TaskService{store: store, events: events, now: func() time.Time { return time.Now().UTC() }}
}

// CreateTask validates and persists a new task bound to ownerID. The id may
// be pre-assigned by the caller (idempotent create); a fresh uuid is used
// otherwise.
func (s *TaskService) CreateTask(ctx context.Context, ownerID, id string, req CreateTaskRequest) (Task, error) {
	fields := map[string]string{}
	title, problem := NormalizeTitle(req.Title)
	if problem != "" {
		fields["title"] = problem
	}
	if problem := ValidateDescription(req.Description); problem != "" {
		fields["description"] = problem
	}
	tags, problem := NormalizeTags(req.Tags)
	if problem != "" {
		fields["tags"] = problem
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNone
	}
	if !priority.Valid() {
		fields["priority"] = "priority must be one of none, low, medium, high"
	}
	recurrence := req.Recurrence
	if recurrence == "" {
		recurrence = RecurrenceNone
	}
	if !recurrence.Valid() {
		fields["recurrence"] = "recurrence must be one of none, daily, weekly, monthly, yearly"
	}
	if len(fields) > 0 {
		return Task{}, &ValidationError{Fields: fields}
	}

	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	t := Task{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Description: req.Description,
		Priority:    priority,
		Tags:        tags,
		Recurrence:  recurrence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		t.DueDate = &due
	}

	if err := s.withRetry(ctx, func() error { return s.store.InsertTask(ctx, t) }); err != nil {
		return Task{}, err
	}
	s.publish(NewTaskEvent(TaskCreated, t, now.UnixNano()))
	log.WithFields(log.Fields{"task": t.ID, "user": ownerID}).Debug("task created")
	return t, nil
}

// GetTask fetches a task scoped to ownerID. A foreign owner's task is
// indistinguishable from a missing one.
func (s *TaskService) GetTask(ctx context.Context, ownerID, id string) (Task, error) {
	var ent *StoredTask
	err := s.withRetry(ctx, func() error {
		var gerr error
		ent, gerr = s.store.GetTask(ctx, ownerID, id)
		return gerr
	})
	if err != nil {
		return Task{}, err
	}
	if ent == nil {
		return Task{}, ErrTaskNotFound
	}
	return ent.Task, nil
}

// ListTasks returns the owner's tasks matching filter, ordered per sort with
// the id tie-break, windowed by page. The second result is the total match
// count before pagination.
func (s *TaskService) ListTasks(ctx context.Context, ownerID string, filter Filter, sortSpec Sort, page Page) ([]Task, int, error) {
	if sortSpec.Key == "" {
		sortSpec.Key = SortByCreatedAt
	}
	if !sortSpec.Key.Valid() {
		return nil, 0, NewValidationError("sort", "sort must be one of created_at, priority, title, due_date")
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		return nil, 0, NewValidationError("priority", "priority must be one of none, low, medium, high")
	}

	var all []Task
	err := s.withRetry(ctx, func() error {
		var lerr error
		all, lerr = s.store.ListTasks(ctx, ownerID)
		return lerr
	})
	if err != nil {
		return nil, 0, err
	}

	matched := make([]Task, 0, len(all))
	for _, t := range all {
		if filter.Matches(t) {
			matched = append(matched, t)
		}
	}
	SortTasks(matched, sortSpec)
	return Paginate(matched, page), len(matched), nil
}

// UpdateTask applies a partial update as a single atomic read-modify-write.
// Validation mirrors CreateTask; on a concurrent write the cycle re-reads
// and reapplies the patch so no update is lost.
func (s *TaskService) UpdateTask(ctx context.Context, ownerID, id string, patch TaskPatch) (Task, error) {
	fields := map[string]string{}
	var title string
	if patch.Title != nil {
		var problem string
		title, problem = NormalizeTitle(*patch.Title)
		if problem != "" {
			fields["title"] = problem
		}
	}
	if patch.Description != nil {
		if problem := ValidateDescription(*patch.Description); problem != "" {
			fields["description"] = problem
		}
	}
	var tags []string
	if patch.Tags != nil {
		var problem string
		tags, problem = NormalizeTags(*patch.Tags)
		if problem != "" {
			fields["tags"] = problem
		}
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		fields["priority"] = "priority must be one of none, low, medium, high"
	}
	if patch.Recurrence != nil && !patch.Recurrence.Valid() {
		fields["recurrence"] = "recurrence must be one of none, daily, weekly, monthly, yearly"
	}
	if len(fields) > 0 {
		return Task{}, &ValidationError{Fields: fields}
	}
	if patch.empty() {
		return Task{}, NewValidationError("patch", "no fields to update")
	}

	updated, err := s.readModifyWrite(ctx, ownerID, id, func(t *Task, now time.Time) bool {
		if patch.Title != nil {
			t.Title = title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.Tags != nil {
			t.Tags = tags
		}
		if patch.DueDate != nil {
			due := patch.DueDate.UTC()
			t.DueDate = &due
		}
		if patch.Recurrence != nil {
			t.Recurrence = *patch.Recurrence
		}
		t.UpdatedAt = now
		return true
	})
	if err != nil {
		return Task{}, err
	}
	s.publish(NewTaskEvent(TaskUpdated, updated, updated.UpdatedAt.UnixNano()))
	return updated, nil
}

// ToggleCompletion flips the completed state, or sets it explicitly when
// desired is non-nil. Setting the state it already has is a no-op: nothing
// is written and UpdatedAt keeps its old value.
func (s *TaskService) ToggleCompletion(ctx context.Context, ownerID, id string, desired *bool) (Task, error) {
	var transitioned bool
	updated, err := s.readModifyWrite(ctx, ownerID, id, func(t *Task, now time.Time) bool {
		target := !t.Completed
		if desired != nil {
			target = *desired
		}
		transitioned = t.SetCompleted(target, now)
		if transitioned {
			t.UpdatedAt = now
		}
		return transitioned
	})
	if err != nil {
		return Task{}, err
	}
	if transitioned {
		eventType := TaskReopened
		if updated.Completed {
			eventType = TaskCompleted
		}
		s.publish(NewTaskEvent(eventType, updated, updated.UpdatedAt.UnixNano()))
	}
	return updated, nil
}

// DeleteTask removes the task, reporting whether a record was actually
// removed. Deleting an already-gone task is not an error.
func (s *TaskService) DeleteTask(ctx context.Context, ownerID, id string) (bool, error) {
	var removed bool
	err := s.withRetry(ctx, func() error {
		var derr error
		removed, derr = s.store.DeleteTask(ctx, ownerID, id)
		return derr
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.publish(Event{
			ID:         uuid.NewString(),
			EntityID:   id,
			EntityType: "task",
			Type:       TaskDeleted,
			Time:       s.now().UnixNano(),
			UserID:     ownerID,
		})
	}
	return removed, nil
}

// readModifyWrite runs one atomic update cycle: load, mutate a copy, write
// conditionally on the loaded ETag, and start over when another writer won
// the race. mutate returns false to skip the write entirely.
func (s *TaskService) readModifyWrite(ctx context.Context, ownerID, id string, mutate func(*Task, time.Time) bool) (Task, error) {
	for {
		var ent *StoredTask
		err := s.withRetry(ctx, func() error {
			var gerr error
			ent, gerr = s.store.GetTask(ctx, ownerID, id)
			return gerr
		})
		if err != nil {
			return Task{}, err
		}
		if ent == nil {
			return Task{}, ErrTaskNotFound
		}

		t := ent.Task.Clone()
		if !mutate(&t, s.now()) {
			return t, nil
		}

		err = s.withRetry(ctx, func() error { return s.store.UpdateTask(ctx, t, ent.ETag) })
		if err == nil {
			return t, nil
		}
		if errors.Is(err, ErrConcurrencyConflict) {
			log.WithFields(log.Fields{"task": id, "user": ownerID}).Debug("concurrent write, retrying")
			continue
		}
		if errors.Is(err, ErrTaskNotFound) {
			// Deleted between read and write.
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
}

// withRetry retries retryable storage failures a small bounded number of
// times with doubling backoff before surfacing the last error.
func (s *TaskService) withRetry(ctx context.Context, op func() error) error {
	delay := storageRetryInitial
	var err error
	for attempt := 0; attempt < storageAttempts; attempt++ {
		if err = op(); err == nil || !IsRetryableStorage(err) {
			return err
		}
		log.WithFields(log.Fields{"attempt": attempt + 1, "error": err}).Warn("retryable storage failure")
		select {
		case <-ctx.Done():
			return &StorageError{Op: "wait", Retryable: false, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (s *TaskService) publish(ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvents(context.Background(), ev.UserID, []Event{ev}); err != nil {
		log.WithFields(log.Fields{"event": ev.Type, "entity": ev.EntityID}).WithError(err).Error("event publish failed")
	}
}
