package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"todo-api/domain"
)

// countingStore wraps MemStore and counts list calls so tests can tell cache
// hits from misses.
type countingStore struct {
	*MemStore
	mu    sync.Mutex
	lists int
}

func (c *countingStore) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.MemStore.ListTasks(ctx, ownerID)
}

func (c *countingStore) listCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

func newCacheFixture(t *testing.T) (*Cache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	base := &countingStore{MemStore: NewMemStore()}
	return NewCache(base, client, time.Minute), base, m
}

func TestCacheListMissThenHit(t *testing.T) {
	cache, base, _ := newCacheFixture(t)
	ctx := context.Background()

	if err := cache.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first, err := cache.ListTasks(ctx, "alice")
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	second, err := cache.ListTasks(ctx, "alice")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("unexpected listings: %v / %v", first, second)
	}
	if got := base.listCalls(); got != 1 {
		t.Fatalf("expected one backing list call, got %d", got)
	}
}

func TestCacheEvictsOnMutation(t *testing.T) {
	cache, base, _ := newCacheFixture(t)
	ctx := context.Background()

	if err := cache.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := cache.ListTasks(ctx, "alice"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	st, err := cache.GetTask(ctx, "alice", "t1")
	if err != nil || st == nil {
		t.Fatalf("get: %v", err)
	}
	updated := st.Task
	updated.Title = "renamed"
	if err := cache.UpdateTask(ctx, updated, st.ETag); err != nil {
		t.Fatalf("update: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, "alice")
	if err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if tasks[0].Title != "renamed" {
		t.Fatalf("stale listing served: %q", tasks[0].Title)
	}
	if got := base.listCalls(); got != 2 {
		t.Fatalf("expected eviction to force a second backing call, got %d", got)
	}
}

func TestCacheEvictsOnDelete(t *testing.T) {
	cache, _, _ := newCacheFixture(t)
	ctx := context.Background()

	if err := cache.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := cache.ListTasks(ctx, "alice"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if _, err := cache.DeleteTask(ctx, "alice", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, "alice")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("deleted task still listed: %v", tasks)
	}
}

func TestCacheDegradesWhenRedisDown(t *testing.T) {
	cache, _, m := newCacheFixture(t)
	ctx := context.Background()

	if err := cache.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	m.Close()

	tasks, err := cache.ListTasks(ctx, "alice")
	if err != nil {
		t.Fatalf("expected fallback to backing store, got %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("unexpected listing: %v", tasks)
	}
}

func TestCacheIsolatesOwners(t *testing.T) {
	cache, _, _ := newCacheFixture(t)
	ctx := context.Background()

	if err := cache.InsertTask(ctx, sampleTask("t1", "alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := cache.ListTasks(ctx, "alice"); err != nil {
		t.Fatalf("warm alice: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, "bob")
	if err != nil {
		t.Fatalf("list bob: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("bob sees alice's cached listing: %v", tasks)
	}
}
