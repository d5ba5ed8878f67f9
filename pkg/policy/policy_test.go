package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/17ms/zeronote/internal/testutil/fixtures"
	"github.com/17ms/zeronote/pkg/auth"
)

// TestScope_FilteredOperations verifies that read, list, update and delete
// receive a filter.
func TestScope_FilteredOperations(t *testing.T) {
	t.Parallel()

	id := auth.Identity{OwnerID: fixtures.Subject}
	for _, op := range []Operation{OpRead, OpList, OpUpdate, OpDelete} {
		d := Scope(id, op)
		assert.Equal(t, op, d.Op)
		assert.True(t, d.Filter.Valid(), op.String())
		assert.False(t, d.Assignment.Valid(), op.String())
		assert.Equal(t, fixtures.Subject, d.Filter.OwnerID())
	}
}

// TestScope_CreateAssignsOwner verifies that create receives an assignment
// overriding any client owner.
func TestScope_CreateAssignsOwner(t *testing.T) {
	t.Parallel()

	d := Scope(auth.Identity{OwnerID: fixtures.Subject}, OpCreate)
	assert.True(t, d.Assignment.Valid())
	assert.False(t, d.Filter.Valid())

	owner := fixtures.OtherSubject
	d.Assignment.Apply(&owner)
	assert.Equal(t, fixtures.Subject, owner)
}

// TestFilter_Isolation verifies that a filter admits only its owner.
func TestFilter_Isolation(t *testing.T) {
	t.Parallel()

	a := FilterFor(auth.Identity{OwnerID: fixtures.Subject}, OpList)
	b := FilterFor(auth.Identity{OwnerID: fixtures.OtherSubject}, OpList)

	assert.True(t, a.Matches(fixtures.Subject))
	assert.False(t, a.Matches(fixtures.OtherSubject))
	assert.False(t, b.Matches(fixtures.Subject))
	assert.False(t, Filter{}.Matches(""))
}

// TestFilter_SQL verifies the rendered predicate and bound argument.
func TestFilter_SQL(t *testing.T) {
	t.Parallel()

	where, arg := FilterFor(auth.Identity{OwnerID: fixtures.Subject}, OpRead).SQL("owner_id", 2)
	assert.Equal(t, "owner_id = $2", where)
	assert.Equal(t, fixtures.Subject, arg)
}

// TestScope_PanicsWithoutOwner verifies the panic on an empty identity.
func TestScope_PanicsWithoutOwner(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { Scope(auth.Identity{}, OpList) })
	assert.Panics(t, func() { FilterFor(auth.Identity{OwnerID: "x"}, OpCreate) })
	assert.Equal(t, "operation(42)", Operation(42).String())
}
