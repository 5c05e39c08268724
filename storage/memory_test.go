package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"todo-api/domain"
)

func sampleTask(id, owner string) domain.Task {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return domain.Task{
		ID:        id,
		OwnerID:   owner,
		Title:     "title " + id,
		Priority:  domain.PriorityNone,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemStoreInsertConflict(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	err := store.InsertTask(ctx, sampleTask("t1", "alice"))
	var cErr *domain.ConflictError
	if !errors.As(err, &cErr) || cErr.ID != "t1" {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Conflicts apply across owners too: the id namespace is global.
	if err := store.InsertTask(ctx, sampleTask("t1", "bob")); !errors.As(err, &cErr) {
		t.Fatalf("expected cross-owner conflict, got %v", err)
	}
}

func TestMemStoreIDNeverReusedAfterDelete(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	removed, err := store.DeleteTask(ctx, "alice", "t1")
	if err != nil || !removed {
		t.Fatalf("delete: %v/%v", removed, err)
	}

	err = store.InsertTask(ctx, sampleTask("t1", "alice"))
	var cErr *domain.ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected deleted id to stay burned, got %v", err)
	}
}

func TestMemStoreOwnerIsolation(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	st, err := store.GetTask(ctx, "bob", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st != nil {
		t.Fatal("foreign owner lookup must return nothing")
	}

	tasks, err := store.ListTasks(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("foreign owner listing must be empty, got %v", tasks)
	}
}

func TestMemStoreETagCompareAndSet(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	task := sampleTask("t1", "alice")
	if err := store.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}

	st, err := store.GetTask(ctx, "alice", "t1")
	if err != nil || st == nil {
		t.Fatalf("get: %v", err)
	}

	task.Title = "updated"
	if err := store.UpdateTask(ctx, task, st.ETag); err != nil {
		t.Fatalf("update with fresh etag: %v", err)
	}

	// The old etag is now stale.
	task.Title = "stale write"
	if err := store.UpdateTask(ctx, task, st.ETag); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}

	current, err := store.GetTask(ctx, "alice", "t1")
	if err != nil || current == nil {
		t.Fatalf("get after update: %v", err)
	}
	if current.Title != "updated" {
		t.Fatalf("stale write leaked through: %q", current.Title)
	}
	if current.ETag == st.ETag {
		t.Fatal("etag must change on every write")
	}
}

func TestMemStoreUpdateMissing(t *testing.T) {
	store := NewMemStore()

	err := store.UpdateTask(context.Background(), sampleTask("ghost", "alice"), `W/"1"`)
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemStoreListSortedByID(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := store.InsertTask(ctx, sampleTask(id, "alice")); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	tasks, err := store.ListTasks(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 || tasks[0].ID != "a" || tasks[1].ID != "b" || tasks[2].ID != "c" {
		t.Fatalf("expected id order, got %v", tasks)
	}
}

func TestMemStoreReturnsCopies(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	task := sampleTask("t1", "alice")
	task.Tags = []string{"work"}
	if err := store.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}

	st, err := store.GetTask(ctx, "alice", "t1")
	if err != nil || st == nil {
		t.Fatalf("get: %v", err)
	}
	st.Tags[0] = "mutated"

	again, err := store.GetTask(ctx, "alice", "t1")
	if err != nil || again == nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Tags[0] != "work" {
		t.Fatal("store handed out a shared slice")
	}
}
