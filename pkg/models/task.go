// Package models defines the task records served by the API and the
// request bodies that create, change and delete them.
//
// A task moves freely between three conditions:
//
//	Undone ⇄ Active ⇄ Done
//
// New tasks start Undone. Request types validate themselves and report
// failures as VAL errors whose messages are returned to the caller.
package models

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// TitleMaxLen is the maximum title length in characters.
const TitleMaxLen = 60

// Condition is the progress of a task.
type Condition string

// Canonical conditions, in the casing stored and returned by the API.
const (
	// ConditionUndone is the condition of every new task.
	ConditionUndone Condition = "Undone"

	// ConditionActive marks a task in progress.
	ConditionActive Condition = "Active"

	// ConditionDone marks a finished task. It is not terminal; a done
	// task may be reopened.
	ConditionDone Condition = "Done"
)

// String returns the canonical spelling.
func (c Condition) String() string { return string(c) }

// Valid reports whether c is one of the canonical conditions.
func (c Condition) Valid() bool {
	switch c {
	case ConditionUndone, ConditionActive, ConditionDone:
		return true
	default:
		return false
	}
}

// ParseCondition accepts any casing and surrounding whitespace.
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "undone":
		return ConditionUndone, nil
	case "active":
		return ConditionActive, nil
	case "done":
		return ConditionDone, nil
	default:
		return "", apperr.New(apperr.CodeValidationFormat, "Invalid task condition")
	}
}

// UnmarshalJSON applies ParseCondition.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return apperr.Wrap(err, apperr.CodeValidationFormat, "Invalid task condition")
	}
	parsed, err := ParseCondition(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ===========================================================================
// Task record
// ===========================================================================

// Task is one stored task. OwnerID is always the subject of the token
// that created it.
type Task struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Condition Condition `json:"condition"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask builds an Undone task for owner from a validated request.
func NewTask(owner string, req CreateTask) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		OwnerID:   owner,
		Title:     req.Title,
		Body:      req.Body,
		Condition: ConditionUndone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ===========================================================================
// Request bodies
// ===========================================================================

// CreateTask is the body of POST /api/new. An owner_id sent by the client
// is decoded so that it can be logged and discarded; the stored owner
// always comes from the token.
type CreateTask struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	OwnerID string `json:"owner_id,omitempty"`
}

// Validate checks title and body lengths.
func (c CreateTask) Validate() error {
	if err := validateTitle(c.Title); err != nil {
		return err
	}
	return validateBody(c.Body)
}

// UpdateTask is the body of PUT /api/update. Fields are kept as raw
// strings so Validate can report each problem with its own message.
type UpdateTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Condition string `json:"condition"`
}

// TaskChange is a validated UpdateTask.
type TaskChange struct {
	ID        uuid.UUID
	Title     string
	Body      string
	Condition Condition
}

// Validate checks every field and returns the parsed change.
func (u UpdateTask) Validate() (TaskChange, error) {
	id, err := ParseID(u.ID)
	if err != nil {
		return TaskChange{}, err
	}
	if err := validateTitle(u.Title); err != nil {
		return TaskChange{}, err
	}
	if err := validateBody(u.Body); err != nil {
		return TaskChange{}, err
	}
	cond, err := ParseCondition(u.Condition)
	if err != nil {
		return TaskChange{}, err
	}
	return TaskChange{ID: id, Title: u.Title, Body: u.Body, Condition: cond}, nil
}

// DeleteTask is the body of DELETE /api/delete.
type DeleteTask struct {
	ID string `json:"id"`
}

// Validate parses the id.
func (d DeleteTask) Validate() (uuid.UUID, error) {
	return ParseID(d.ID)
}

// ===========================================================================
// Field validation
// ===========================================================================

// ParseID accepts only the canonical 36 character hyphenated form.
func ParseID(s string) (uuid.UUID, error) {
	if len(s) != 36 {
		return uuid.Nil, apperr.New(apperr.CodeValidationFormat, "Invalid UUID")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperr.Wrap(err, apperr.CodeValidationFormat, "Invalid UUID")
	}
	return id, nil
}

// validateTitle counts characters, not bytes, against TitleMaxLen.
func validateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n < 1 || n > TitleMaxLen {
		return apperr.New(apperr.CodeValidationRange, "Title must be between 1 and 60 characters long")
	}
	return nil
}

// validateBody only requires a non-empty body.
func validateBody(body string) error {
	if body == "" {
		return apperr.New(apperr.CodeValidationRange, "Body must be at least 1 character long")
	}
	return nil
}
