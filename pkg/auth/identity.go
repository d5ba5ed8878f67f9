package auth

import (
	"slices"
	"strings"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// Identity is the caller a request acts for. OwnerID is the token
// subject and the only value persistence layers may scope by.
type Identity struct {
	OwnerID  string   `json:"owner_id"`
	Username string   `json:"username,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// Extract derives the identity from verified claims. A blank subject is
// rejected with [apperr.CodeMissingSubject]; claims that did not come out
// of a [Verifier] are rejected with [apperr.CodeAuthenticationInvalid].
func Extract(claims *VerifiedClaims) (Identity, error) {
	if claims == nil || !claims.sealed {
		return Identity{}, apperr.New(apperr.CodeAuthenticationInvalid,
			"auth: claims were not produced by the verifier")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, apperr.New(apperr.CodeMissingSubject, "auth: token has no subject")
	}
	return Identity{
		OwnerID:  claims.Subject,
		Username: claims.Username,
		Scopes:   slices.Clone(claims.Scopes),
	}, nil
}
