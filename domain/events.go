package domain

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

const (
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskCompleted = "task-completed"
	TaskReopened  = "task-reopened"
	TaskDeleted   = "task-deleted"
)

// Event represents a change in the domain model, published for downstream
// consumers such as read-model projections.
type Event struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Time       int64           `json:"time"`
	UserID     string          `json:"userId"`
}

// EventPublisher delivers task change events. Publication is best-effort:
// the task service never fails a mutation because an event could not be
// delivered.
type EventPublisher interface {
	PublishEvents(ctx context.Context, userID string, events []Event) error
}

// NewTaskEvent builds an event for the given task change. The event id
// doubles as a dedupe key for consumers.
func NewTaskEvent(eventType string, t Task, ts int64) Event {
	data, _ := json.Marshal(t)
	return Event{
		ID:         uuid.NewString(),
		EntityID:   t.ID,
		EntityType: "task",
		Type:       eventType,
		Data:       data,
		Time:       ts,
		UserID:     t.OwnerID,
	}
}
