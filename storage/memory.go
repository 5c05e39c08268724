package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"todo-api/domain"
)

// MemStore is an in-memory Store used by tests and local runs. It honors the
// full store contract: owner partitioning, ETag compare-and-set, and id
// uniqueness across the store's lifetime including deleted ids.
type MemStore struct {
	mu       sync.RWMutex
	byOwner  map[string]map[string]*memRecord
	everSeen map[string]struct{}
	revision uint64
}

type memRecord struct {
	task domain.Task
	etag string
}

func NewMemStore() *MemStore {
	return &MemStore{
		byOwner:  make(map[string]map[string]*memRecord),
		everSeen: make(map[string]struct{}),
	}
}

func (m *MemStore) InsertTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.everSeen[t.ID]; taken {
		return &domain.ConflictError{ID: t.ID}
	}
	owner := m.byOwner[t.OwnerID]
	if owner == nil {
		owner = make(map[string]*memRecord)
		m.byOwner[t.OwnerID] = owner
	}
	m.everSeen[t.ID] = struct{}{}
	owner[t.ID] = &memRecord{task: t.Clone(), etag: m.nextETag()}
	return nil
}

func (m *MemStore) GetTask(ctx context.Context, ownerID, id string) (*domain.StoredTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byOwner[ownerID][id]
	if !ok {
		return nil, nil
	}
	return &domain.StoredTask{Task: rec.task.Clone(), ETag: rec.etag}, nil
}

func (m *MemStore) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owner := m.byOwner[ownerID]
	tasks := make([]domain.Task, 0, len(owner))
	for _, rec := range owner {
		tasks = append(tasks, rec.task.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (m *MemStore) UpdateTask(ctx context.Context, t domain.Task, etag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byOwner[t.OwnerID][t.ID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if rec.etag != etag {
		return domain.ErrConcurrencyConflict
	}
	rec.task = t.Clone()
	rec.etag = m.nextETag()
	return nil
}

func (m *MemStore) DeleteTask(ctx context.Context, ownerID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner := m.byOwner[ownerID]
	if _, ok := owner[id]; !ok {
		return false, nil
	}
	delete(owner, id)
	return true, nil
}

// nextETag must be called with the write lock held.
func (m *MemStore) nextETag() string {
	m.revision++
	return "W/\"" + strconv.FormatUint(m.revision, 10) + "\""
}

var _ domain.Store = (*MemStore)(nil)
