package task

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTaskStore implements the TaskStore interface in process memory.
// It is used by tests; SaveFn and UpdateStatusFn may be replaced to inject failures.
type MemoryTaskStore struct {
	mutex          sync.RWMutex
	tasks          map[uuid.UUID]*Record
	now            func() time.Time
	SaveFn         func(ctx context.Context, rec *Record) error
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status TaskStatus, errorMsg string) error
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates a new MemoryTaskStore with default implementations
func NewMemoryTaskStore() *MemoryTaskStore {
	store := &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*Record),
		now:   time.Now,
	}

	store.SaveFn = func(ctx context.Context, rec *Record) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()

		cp := *rec
		store.tasks[rec.ID] = &cp
		return nil
	}

	store.UpdateStatusFn = func(ctx context.Context, id uuid.UUID, status TaskStatus, errorMsg string) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()

		rec, exists := store.tasks[id]
		if !exists {
			return ErrTaskNotFound
		}
		rec.Status = status
		rec.LastError = errorMsg
		rec.UpdatedAt = store.now().UTC()
		return nil
	}

	return store
}

// SaveTask persists a task to the memory store
func (s *MemoryTaskStore) SaveTask(ctx context.Context, rec *Record) error {
	return s.SaveFn(ctx, rec)
}

// GetTask returns a copy of the stored task.
func (s *MemoryTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *rec
	return &cp, nil
}

// CancelTask cancels a pending task.
func (s *MemoryTaskStore) CancelTask(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.tasks[id]
	if !ok || rec.Status != TaskStatusPending {
		return false, nil
	}
	rec.Status = TaskStatusCancelled
	rec.UpdatedAt = s.now().UTC()
	return true, nil
}

// ClaimDueTasks claims pending tasks due at now, earliest first.
func (s *MemoryTaskStore) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var due []*Record
	for _, rec := range s.tasks {
		if rec.Status == TaskStatusPending && !rec.RunAt.After(now) {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Record, 0, len(due))
	for _, rec := range due {
		rec.Status = TaskStatusProcessing
		rec.Attempts++
		rec.UpdatedAt = s.now().UTC()
		cp := *rec
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

// UpdateTaskStatus updates the status of a task in the memory store
func (s *MemoryTaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status TaskStatus, errorMsg string) error {
	return s.UpdateStatusFn(ctx, id, status, errorMsg)
}

// RetryTask puts a task back to pending.
func (s *MemoryTaskStore) RetryTask(ctx context.Context, id uuid.UUID, runAt time.Time, errorMsg string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	rec.Status = TaskStatusPending
	rec.RunAt = runAt.UTC()
	rec.LastError = errorMsg
	rec.UpdatedAt = s.now().UTC()
	return nil
}

// ResetStuckTasks resets processing tasks last updated before olderThan ago.
func (s *MemoryTaskStore) ResetStuckTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := s.now().UTC().Add(-olderThan)
	n := 0
	for _, rec := range s.tasks {
		if rec.Status != TaskStatusProcessing {
			continue
		}
		if !rec.UpdatedAt.After(cutoff) {
			rec.Status = TaskStatusPending
			rec.LastError = "reset after being stuck in processing state"
			rec.UpdatedAt = s.now().UTC()
			n++
		}
	}
	return n, nil
}

// WithTx returns s; the memory store has no transactions.
func (s *MemoryTaskStore) WithTx(tx *sql.Tx) TaskStore {
	return s
}

// TasksByStatus returns copies of the stored tasks with the given status.
func (s *MemoryTaskStore) TasksByStatus(status TaskStatus) []*Record {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*Record
	for _, rec := range s.tasks {
		if rec.Status == status {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}
