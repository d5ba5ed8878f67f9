package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/17ms/zeronote/internal/testutil"
	apperr "github.com/17ms/zeronote/pkg/errors"
)

// ===========================================================================
// Condition
// ===========================================================================

// TestParseCondition verifies case and whitespace folding.
func TestParseCondition(t *testing.T) {
	t.Parallel()

	tests := map[string]Condition{
		"undone":   ConditionUndone,
		"ACTIVE":   ConditionActive,
		" Done \n": ConditionDone,
	}
	for in, want := range tests {
		got, err := ParseCondition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
		assert.True(t, got.Valid())
	}

	_, err := ParseCondition("down")
	testutil.RequireErrorCode(t, err, apperr.CodeValidationFormat)
	assert.False(t, Condition("down").Valid())
}

// TestCondition_UnmarshalJSON verifies that JSON decoding applies the parser.
func TestCondition_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{"condition":"active"}`), &task))
	assert.Equal(t, ConditionActive, task.Condition)

	err := json.Unmarshal([]byte(`{"condition":"paused"}`), &task)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationFormat))
}

// ===========================================================================
// Requests
// ===========================================================================

// TestNewTask verifies the initial condition and timestamps.
func TestNewTask(t *testing.T) {
	t.Parallel()

	task := NewTask("owner-1", CreateTask{Title: "t", Body: "b", OwnerID: "someone-else"})
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, "owner-1", task.OwnerID)
	assert.Equal(t, ConditionUndone, task.Condition)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
}

// TestCreateTask_Validate verifies the title and body bounds.
func TestCreateTask_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     CreateTask
		wantMsg string
	}{
		{"ok", CreateTask{Title: "Buy milk", Body: "2 litres"}, ""},
		{"60 runes", CreateTask{Title: strings.Repeat("ä", 60), Body: "x"}, ""},
		{"empty title", CreateTask{Title: "", Body: "x"}, "Title must be between 1 and 60 characters long"},
		{"long title", CreateTask{Title: strings.Repeat("a", 61), Body: "x"}, "Title must be between 1 and 60 characters long"},
		{"empty body", CreateTask{Title: "t"}, "Body must be at least 1 character long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			e, ok := apperr.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, e.Message)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

// TestUpdateTask_Validate verifies each field check.
func TestUpdateTask_Validate(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	change, err := UpdateTask{ID: id.String(), Title: "t", Body: "b", Condition: "done"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, TaskChange{ID: id, Title: "t", Body: "b", Condition: ConditionDone}, change)

	_, err = UpdateTask{ID: "550e840-e29b-41d4-a716-44665540000", Title: "t", Body: "b", Condition: "done"}.Validate()
	testutil.RequireErrorCode(t, err, apperr.CodeValidationFormat)

	_, err = UpdateTask{ID: id.String(), Title: "t", Body: "b", Condition: "down"}.Validate()
	testutil.RequireErrorCode(t, err, apperr.CodeValidationFormat)

	_, err = UpdateTask{ID: id.String(), Title: "", Body: "b", Condition: "done"}.Validate()
	testutil.RequireErrorCode(t, err, apperr.CodeValidationRange)
}

// TestParseID verifies that only the canonical UUID form parses.
func TestParseID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	got, err := DeleteTask{ID: id.String()}.Validate()
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "not-a-uuid", strings.ReplaceAll(id.String(), "-", ""), "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz"} {
		_, err := ParseID(bad)
		testutil.AssertErrorCode(t, err, apperr.CodeValidationFormat, bad)
	}
}
