package policy_test

import (
	"fmt"

	"github.com/17ms/zeronote/pkg/auth"
	"github.com/17ms/zeronote/pkg/policy"
)

// ExampleFilterFor scopes a lookup to the caller. The predicate is bound
// as a query argument, never interpolated.
func ExampleFilterFor() {
	caller := auth.Identity{OwnerID: "3f1c2b7e-alice"}

	f := policy.FilterFor(caller, policy.OpRead)
	where, arg := f.SQL("owner_id", 2)

	fmt.Println(where, arg)
	fmt.Println(f.Matches("3f1c2b7e-alice"), f.Matches("9d0e4a11-bob"))
	// Output:
	// owner_id = $2 3f1c2b7e-alice
	// true false
}

// ExampleAssignmentFor overwrites an owner supplied by the client with
// the caller's own.
func ExampleAssignmentFor() {
	caller := auth.Identity{OwnerID: "3f1c2b7e-alice"}
	owner := "9d0e4a11-bob"

	policy.AssignmentFor(caller).Apply(&owner)
	fmt.Println(owner)
	// Output:
	// 3f1c2b7e-alice
}
