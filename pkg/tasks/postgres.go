package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/17ms/zeronote/pkg/clients/postgres"
	"github.com/17ms/zeronote/pkg/models"
	"github.com/17ms/zeronote/pkg/policy"
)

// Column lists shared by every statement so scanTask sees one order.
const (
	taskColumns = "id, owner_id, title, body, condition, created_at, updated_at"
	ownerColumn = "owner_id"
)

// DB is the query surface of *postgres.Client. Tests substitute a
// pgxmock pool.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DB = (*postgres.Client)(nil)

// PostgresStore keeps tasks in the tasks table created by Migrate. Every
// statement that touches existing rows carries the filter's owner_id
// predicate.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store backed by db. The schema must already
// be in place; run [Migrate] first.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ===========================================================================
// Store implementation
// ===========================================================================

// List returns the owner's tasks ordered by created_at then id, matching
// [MemoryStore.List].
func (s *PostgresStore) List(ctx context.Context, f policy.Filter) ([]models.Task, error) {
	if !f.Valid() {
		return nil, errUnscoped()
	}
	where, owner := f.SQL(ownerColumn, 1)
	rows, err := s.db.Query(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE "+where+" ORDER BY created_at, id", owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, postgres.WrapError(err, "tasks: scan failed")
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.WrapError(err, "tasks: list failed")
	}
	return out, nil
}

// Get returns one task. Rows owned by someone else are filtered out by the
// WHERE clause and surface as not found.
func (s *PostgresStore) Get(ctx context.Context, f policy.Filter, id uuid.UUID) (*models.Task, error) {
	if !f.Valid() {
		return nil, errUnscoped()
	}
	where, owner := f.SQL(ownerColumn, 2)
	row := s.db.QueryRow(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1 AND "+where, id, owner)
	return scanOne(row, "tasks: get failed")
}

// Create inserts a new task and returns the row as stored.
func (s *PostgresStore) Create(ctx context.Context, a policy.Assignment, req models.CreateTask) (*models.Task, error) {
	if !a.Valid() {
		return nil, errUnscoped()
	}
	t := models.NewTask("", req)
	a.Apply(&t.OwnerID)

	row := s.db.QueryRow(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+taskColumns,
		t.ID, t.OwnerID, t.Title, t.Body, string(t.Condition), t.CreatedAt, t.UpdatedAt)
	return scanOne(row, "tasks: create failed")
}

// Update overwrites title, body and condition and stamps updated_at with
// the database clock.
func (s *PostgresStore) Update(ctx context.Context, f policy.Filter, change models.TaskChange) (*models.Task, error) {
	if !f.Valid() {
		return nil, errUnscoped()
	}
	where, owner := f.SQL(ownerColumn, 5)
	row := s.db.QueryRow(ctx,
		"UPDATE tasks SET title = $2, body = $3, condition = $4, updated_at = now() WHERE id = $1 AND "+
			where+" RETURNING "+taskColumns,
		change.ID, change.Title, change.Body, string(change.Condition), owner)
	return scanOne(row, "tasks: update failed")
}

// Delete removes one task. Zero affected rows means the task is missing
// or not the owner's.
func (s *PostgresStore) Delete(ctx context.Context, f policy.Filter, id uuid.UUID) error {
	if !f.Valid() {
		return errUnscoped()
	}
	where, owner := f.SQL(ownerColumn, 2)
	tag, err := s.db.Exec(ctx, "DELETE FROM tasks WHERE id = $1 AND "+where, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errNotFound()
	}
	return nil
}

// ===========================================================================
// Row scanning
// ===========================================================================

// scanOne scans a single-row result, mapping pgx.ErrNoRows to not found.
func scanOne(row pgx.Row, message string) (*models.Task, error) {
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, postgres.WrapError(err, message)
	}
	return t, nil
}

// scanTask reads one row in taskColumns order. A condition the models
// package does not recognise is an integrity error, not a client error.
func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		t    models.Task
		cond string
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Body, &cond, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := models.ParseCondition(cond)
	if err != nil {
		return nil, fmt.Errorf("tasks: stored condition %q: %w", cond, err)
	}
	t.Condition = parsed
	return &t, nil
}
