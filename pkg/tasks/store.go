// Package tasks stores tasks and serves the /api routes that manage them.
//
// Every Store method takes the constraint produced by the ownership
// policy: a [policy.Filter] for reads, updates and deletes and a
// [policy.Assignment] for creates. A store never sees an identity, only
// the owner the policy decided on, and it rejects zero-value constraints.
package tasks

import (
	"context"

	"github.com/google/uuid"

	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/models"
	"github.com/17ms/zeronote/pkg/policy"
)

// Store persists tasks. Records outside the filter behave exactly like
// records that do not exist.
//
// Implementations:
//   - [MemoryStore] for tests and single-process runs
//   - [PostgresStore] for deployments
type Store interface {
	// List returns every task the filter admits, oldest first.
	List(ctx context.Context, f policy.Filter) ([]models.Task, error)

	// Get returns one task or an error with [apperr.CodeNotFoundResource].
	Get(ctx context.Context, f policy.Filter, id uuid.UUID) (*models.Task, error)

	// Create stores a new task with the owner taken from a.
	Create(ctx context.Context, a policy.Assignment, req models.CreateTask) (*models.Task, error)

	// Update overwrites title, body and condition of an existing task.
	Update(ctx context.Context, f policy.Filter, change models.TaskChange) (*models.Task, error)

	// Delete removes one task or returns [apperr.CodeNotFoundResource].
	Delete(ctx context.Context, f policy.Filter, id uuid.UUID) error
}

// errNotFound is returned for missing tasks and for tasks owned by
// someone else alike.
func errNotFound() error {
	return apperr.New(apperr.CodeNotFoundResource, "Task not found")
}

// errUnscoped flags a wiring bug: a handler reached the store without
// running the ownership policy.
func errUnscoped() error {
	return apperr.New(apperr.CodeInternal, "tasks: store called without an ownership constraint")
}
