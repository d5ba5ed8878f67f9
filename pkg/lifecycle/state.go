// Package lifecycle manages the process lifecycle of the zeronote API:
// a validated state machine, start and stop hooks, and a health report
// backed by dependency checks.
//
// The flow for a healthy process is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed when a hook fails.
//
// Lifecycle operations create OpenTelemetry spans under the
// "github.com/17ms/zeronote/pkg/lifecycle" scope.
package lifecycle

// State is the lifecycle state of a [Service]. The zero value is not a
// valid state; services begin in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a freshly constructed service.
	StateUnknown State = "unknown"

	// StateStarting is set while start hooks run.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Service.Health] can report
	// healthy.
	StateRunning State = "running"

	// StateStopping is set before the OnStop hook runs, while in-flight
	// requests drain.
	StateStopping State = "stopping"

	// StateStopped is terminal; every stop hook succeeded.
	StateStopped State = "stopped"

	// StateFailed is terminal; a hook returned an error.
	StateFailed State = "failed"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognised state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions is the transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//
// Stopped and Failed are final; a process is not restarted in place.
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
}

// ValidTransition reports whether from may move to to. Same-state
// transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
