// Package policy turns an authenticated identity into the ownership
// constraint a store must apply. Reads, lists, updates and deletes are
// confined by a [Filter]; creates are stamped by an [Assignment].
// Neither can be built with an empty owner.
package policy

import (
	"fmt"

	"github.com/17ms/zeronote/pkg/auth"
)

// Operation is a data operation requested by a caller.
type Operation int

// Operations are confined by a [Filter], except OpCreate which takes an
// [Assignment].
const (
	// OpRead fetches one record.
	OpRead Operation = iota

	// OpList enumerates the caller's records.
	OpList

	// OpUpdate modifies an existing record.
	OpUpdate

	// OpDelete removes an existing record.
	OpDelete

	// OpCreate stores a new record owned by the caller.
	OpCreate
)

// String returns the lower-case operation name used in logs.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpList:
		return "list"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpCreate:
		return "create"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ===========================================================================
// Constraints
// ===========================================================================

// Filter restricts an operation to records owned by one owner. The zero
// value matches nothing and is rejected by every store.
type Filter struct {
	ownerID string
}

// OwnerID is the owner every matching record must have.
func (f Filter) OwnerID() string { return f.ownerID }

// Matches reports whether a record owned by owner passes the filter.
func (f Filter) Matches(owner string) bool {
	return f.ownerID != "" && owner == f.ownerID
}

// SQL renders the predicate for a positional-parameter query and the
// argument to bind at $argPos.
//
//	where, arg := f.SQL("owner_id", 1)  // "owner_id = $1", ownerID
func (f Filter) SQL(column string, argPos int) (string, any) {
	return fmt.Sprintf("%s = $%d", column, argPos), f.ownerID
}

// Valid reports whether f was produced by [Scope].
func (f Filter) Valid() bool { return f.ownerID != "" }

// Assignment fixes the owner of a record being created.
type Assignment struct {
	ownerID string
}

// OwnerID is the owner the new record receives.
func (a Assignment) OwnerID() string { return a.ownerID }

// Apply overwrites *owner, discarding any client supplied value.
func (a Assignment) Apply(owner *string) {
	*owner = a.ownerID
}

// Valid reports whether a was produced by [Scope].
func (a Assignment) Valid() bool { return a.ownerID != "" }

// ===========================================================================
// Policy
// ===========================================================================

// Decision is either a Filter or an Assignment, selected by Op.
type Decision struct {
	Op         Operation
	Filter     Filter
	Assignment Assignment
}

// Scope maps identity and op to the constraint the store must enforce.
// It panics on an identity without an owner: the middleware rejects such
// requests, so reaching here with one is a programming error.
func Scope(identity auth.Identity, op Operation) Decision {
	if identity.OwnerID == "" {
		panic("policy: identity without owner reached the ownership policy")
	}
	if op == OpCreate {
		return Decision{Op: op, Assignment: Assignment{ownerID: identity.OwnerID}}
	}
	return Decision{Op: op, Filter: Filter{ownerID: identity.OwnerID}}
}

// FilterFor is Scope for the filtered operations.
func FilterFor(identity auth.Identity, op Operation) Filter {
	if op == OpCreate {
		panic("policy: create is scoped by an Assignment, not a Filter")
	}
	return Scope(identity, op).Filter
}

// AssignmentFor is Scope for OpCreate.
func AssignmentFor(identity auth.Identity) Assignment {
	return Scope(identity, OpCreate).Assignment
}
