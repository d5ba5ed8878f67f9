package auth

import (
	apperr "github.com/17ms/zeronote/pkg/errors"
)

// RequestState is the position of one request in the authorization
// pipeline. Every request starts Unauthenticated and ends either
// Authorized or Rejected.
type RequestState string

const (
	// StateUnauthenticated is the initial state: nothing has been read
	// from the request.
	StateUnauthenticated RequestState = "unauthenticated"

	// StateTokenPresent means a well formed Bearer header was found.
	StateTokenPresent RequestState = "token_present"

	// StateVerified means the token passed signature and claim checks.
	StateVerified RequestState = "verified"

	// StateAuthorized means an identity was extracted and attached; the
	// handler runs.
	StateAuthorized RequestState = "authorized"

	// StateRejected means a rejection was written and the handler never
	// runs.
	StateRejected RequestState = "rejected"
)

// String returns the state name used in logs.
func (s RequestState) String() string { return string(s) }

// IsTerminal reports whether s is Authorized or Rejected.
func (s RequestState) IsTerminal() bool {
	return s == StateAuthorized || s == StateRejected
}

// requestTransitions is the transition matrix:
//
//	Unauthenticated → TokenPresent, Rejected
//	TokenPresent    → Verified, Rejected
//	Verified        → Authorized, Rejected
var requestTransitions = map[RequestState][]RequestState{
	StateUnauthenticated: {StateTokenPresent, StateRejected},
	StateTokenPresent:    {StateVerified, StateRejected},
	StateVerified:        {StateAuthorized, StateRejected},
}

// ValidRequestTransition reports whether from may move to to.
func ValidRequestTransition(from, to RequestState) bool {
	for _, t := range requestTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// requestFlow tracks one request. It is confined to the goroutine
// serving the request.
type requestFlow struct {
	state    RequestState
	token    string
	claims   *VerifiedClaims
	identity Identity
	err      error
}

// newRequestFlow starts a flow in StateUnauthenticated.
func newRequestFlow() *requestFlow {
	return &requestFlow{state: StateUnauthenticated}
}

// advance moves the flow forward. An illegal transition is a bug in the
// middleware and yields [apperr.CodeInternal].
func (f *requestFlow) advance(next RequestState) error {
	if !ValidRequestTransition(f.state, next) {
		return apperr.Newf(apperr.CodeInternal,
			"auth: invalid request transition from %q to %q", f.state, next)
	}
	f.state = next
	return nil
}

// reject moves the flow to Rejected from any non-terminal state.
func (f *requestFlow) reject(err error) error {
	if !f.state.IsTerminal() {
		f.state = StateRejected
	}
	f.err = err
	return err
}
