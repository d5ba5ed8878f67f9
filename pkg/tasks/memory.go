package tasks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/17ms/zeronote/pkg/models"
	"github.com/17ms/zeronote/pkg/policy"
)

// MemoryStore keeps tasks in process memory. It backs tests and
// STORE=memory runs.
//
// Tasks are stored by value, so callers receive copies and cannot mutate
// stored records through a returned pointer. MemoryStore is safe for
// concurrent use; reads share an RWMutex and writes hold it exclusively.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]models.Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[uuid.UUID]models.Task)}
}

// List returns the owner's tasks oldest first. Ties on CreatedAt are
// broken by ID so the order is stable across calls.
func (s *MemoryStore) List(_ context.Context, f policy.Filter) ([]models.Task, error) {
	if !f.Valid() {
		return nil, errUnscoped()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0)
	for _, t := range s.tasks {
		if f.Matches(t.OwnerID) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b models.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

// Get returns the task with id if f admits its owner. A task owned by
// someone else is reported as not found, never as forbidden.
func (s *MemoryStore) Get(_ context.Context, f policy.Filter, id uuid.UUID) (*models.Task, error) {
	if !f.Valid() {
		return nil, errUnscoped()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok || !f.Matches(t.OwnerID) {
		return nil, errNotFound()
	}
	return &t, nil
}

// Create stores a new task owned by the owner a assigns. Any owner the
// client put in the request has already been discarded by the policy.
func (s *MemoryStore) Create(_ context.Context, a policy.Assignment, req models.CreateTask) (*models.Task, error) {
	if !a.Valid() {
		return nil, errUnscoped()
	}
	t := models.NewTask("", req)
	a.Apply(&t.OwnerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return t, nil
}

// Update replaces the mutable fields of an existing task. ID, OwnerID and
// CreatedAt never change.
func (s *MemoryStore) Update(_ context.Context, f policy.Filter, change models.TaskChange) (*models.Task, error) {
	if !f.Valid() {
		return nil, errUnscoped()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[change.ID]
	if !ok || !f.Matches(t.OwnerID) {
		return nil, errNotFound()
	}
	t.Title = change.Title
	t.Body = change.Body
	t.Condition = change.Condition
	t.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = t
	return &t, nil
}

// Delete removes the task with id if f admits its owner.
func (s *MemoryStore) Delete(_ context.Context, f policy.Filter, id uuid.UUID) error {
	if !f.Valid() {
		return errUnscoped()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || !f.Matches(t.OwnerID) {
		return errNotFound()
	}
	delete(s.tasks, id)
	return nil
}
