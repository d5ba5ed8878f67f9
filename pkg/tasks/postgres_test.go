package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/17ms/zeronote/internal/testutil"
	"github.com/17ms/zeronote/internal/testutil/fixtures"
	"github.com/17ms/zeronote/pkg/clients/postgres"
	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/models"
	"github.com/17ms/zeronote/pkg/policy"
)

var taskColumnNames = []string{"id", "owner_id", "title", "body", "condition", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPostgresStore(postgres.NewFromPool(mock, "zeronote")), mock
}

func taskRow(id uuid.UUID, owner, title, cond string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(taskColumnNames).AddRow(id.String(), owner, title, "body", cond, now, now)
}

// ===========================================================================
// Queries
// ===========================================================================

// TestPostgresStore_ListFiltersByOwner verifies the owner predicate on list.
func TestPostgresStore_ListFiltersByOwner(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM tasks WHERE owner_id = \$1 ORDER BY created_at, id`).
		WithArgs(fixtures.Subject).
		WillReturnRows(taskRow(id, fixtures.Subject, "t", "Active"))

	list, err := s.List(context.Background(), policy.FilterFor(alice, policy.OpList))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, models.ConditionActive, list[0].Condition)
}

// TestPostgresStore_GetFiltersByOwner verifies the owner predicate and the 404
// for no rows.
func TestPostgresStore_GetFiltersByOwner(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM tasks WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(id, fixtures.Subject).
		WillReturnRows(taskRow(id, fixtures.Subject, "t", "Undone"))
	mock.ExpectQuery(`SELECT .+ FROM tasks WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(id, fixtures.OtherSubject).
		WillReturnRows(pgxmock.NewRows(taskColumnNames))

	task, err := s.Get(context.Background(), policy.FilterFor(alice, policy.OpRead), id)
	require.NoError(t, err)
	assert.Equal(t, "t", task.Title)

	_, err = s.Get(context.Background(), policy.FilterFor(bob, policy.OpRead), id)
	testutil.RequireErrorCode(t, err, apperr.CodeNotFoundResource)
}

// TestPostgresStore_CreateBindsAssignedOwner verifies the bound owner.
func TestPostgresStore_CreateBindsAssignedOwner(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery(`INSERT INTO tasks \(.+\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\) RETURNING`).
		WithArgs(pgxmock.AnyArg(), fixtures.Subject, "t", "b", "Undone", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(taskRow(id, fixtures.Subject, "t", "Undone"))

	task, err := s.Create(context.Background(), policy.AssignmentFor(alice),
		models.CreateTask{Title: "t", Body: "b", OwnerID: fixtures.OtherSubject})
	require.NoError(t, err)
	assert.Equal(t, fixtures.Subject, task.OwnerID)
}

// TestPostgresStore_Update verifies the update statement and its arguments.
func TestPostgresStore_Update(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	change := models.TaskChange{ID: id, Title: "t2", Body: "b2", Condition: models.ConditionDone}
	mock.ExpectQuery(`UPDATE tasks SET .+ WHERE id = \$1 AND owner_id = \$5 RETURNING`).
		WithArgs(id, "t2", "b2", "Done", fixtures.Subject).
		WillReturnRows(taskRow(id, fixtures.Subject, "t2", "Done"))
	mock.ExpectQuery(`UPDATE tasks SET .+ WHERE id = \$1 AND owner_id = \$5 RETURNING`).
		WithArgs(id, "t2", "b2", "Done", fixtures.OtherSubject).
		WillReturnRows(pgxmock.NewRows(taskColumnNames))

	task, err := s.Update(context.Background(), policy.FilterFor(alice, policy.OpUpdate), change)
	require.NoError(t, err)
	assert.Equal(t, models.ConditionDone, task.Condition)

	_, err = s.Update(context.Background(), policy.FilterFor(bob, policy.OpUpdate), change)
	testutil.RequireErrorCode(t, err, apperr.CodeNotFoundResource)
}

// TestPostgresStore_Delete verifies the 404 for zero affected rows.
func TestPostgresStore_Delete(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectExec(`DELETE FROM tasks WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(id, fixtures.Subject).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM tasks WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(id, fixtures.OtherSubject).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.Delete(context.Background(), policy.FilterFor(alice, policy.OpDelete), id))
	err := s.Delete(context.Background(), policy.FilterFor(bob, policy.OpDelete), id)
	testutil.RequireErrorCode(t, err, apperr.CodeNotFoundResource)
}

// ===========================================================================
// Failures
// ===========================================================================

// TestPostgresStore_DatabaseErrors verifies the timeout and internal
// mapping of driver errors.
func TestPostgresStore_DatabaseErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT`).
		WithArgs(fixtures.Subject).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectExec(`DELETE`).
		WithArgs(pgxmock.AnyArg(), fixtures.Subject).
		WillReturnError(assert.AnError)

	_, err := s.List(context.Background(), policy.FilterFor(alice, policy.OpList))
	testutil.RequireErrorCode(t, err, apperr.CodeTimeoutDatabase)

	err = s.Delete(context.Background(), policy.FilterFor(alice, policy.OpDelete), uuid.New())
	testutil.RequireErrorCode(t, err, apperr.CodeInternalDatabase)
}

// TestPostgresStore_CorruptCondition verifies that an unknown stored condition
// is an integrity error.
func TestPostgresStore_CorruptCondition(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery(`SELECT`).
		WithArgs(pgxmock.AnyArg(), fixtures.Subject).
		WillReturnRows(taskRow(id, fixtures.Subject, "t", "Paused"))

	_, err := s.Get(context.Background(), policy.FilterFor(alice, policy.OpRead), id)
	testutil.RequireErrorCode(t, err, apperr.CodeInternalDatabase)
	assert.Contains(t, err.Error(), `stored condition "Paused"`)
}

// TestPostgresStore_UnscopedNeverQueries verifies that zero constraints are
// rejected before any statement runs.
func TestPostgresStore_UnscopedNeverQueries(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.List(context.Background(), policy.Filter{})
	testutil.AssertErrorCode(t, err, apperr.CodeInternal)
	_, err = s.Create(context.Background(), policy.Assignment{}, models.CreateTask{Title: "t", Body: "b"})
	testutil.AssertErrorCode(t, err, apperr.CodeInternal)
	testutil.AssertErrorCode(t, s.Delete(context.Background(), policy.Filter{}, uuid.New()), apperr.CodeInternal)
}
