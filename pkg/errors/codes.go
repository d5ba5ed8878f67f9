package errors

// Code is a stable, machine-readable error identifier of the form
// CATEGORY_NNN. Codes are never renumbered once assigned.
//
// The category selects the HTTP status of a rejection:
//
//	VAL_xxx     400 Bad Request
//	AUTH_xxx    401 Unauthorized
//	AUTHZ_xxx   403 Forbidden
//	NF_xxx      404 Not Found
//	CONF_xxx    409 Conflict
//	INT_xxx     500 Internal Server Error
//	UNAVAIL_xxx 503 Service Unavailable
//	TIMEOUT_xxx 504 Gateway Timeout
type Code string

const (
	// Validation (400).

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field or body has an invalid
	// format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value outside its accepted range,
	// such as an over-long title.
	CodeValidationRange Code = "VAL_004"

	// CodeMalformedToken means the bearer value is not a compact
	// three-segment token at all (empty, oversized, undecodable).
	CodeMalformedToken Code = "VAL_005"

	// Authentication (401).

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired means the token is outside its validity
	// window, ClockSkew included.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid means the token verified but its claims
	// are unacceptable.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthNotFound means no usable "Authorization: Bearer <token>"
	// header was presented.
	CodeAuthNotFound Code = "AUTH_004"

	// CodeUnknownKey means the token's kid is absent from the key set
	// even after a refresh, or the token declares no kid.
	CodeUnknownKey Code = "AUTH_005"

	// CodeBadSignature means the signature does not verify under the
	// resolved key.
	CodeBadSignature Code = "AUTH_006"

	// CodeAudienceMismatch means neither aud nor client_id names this
	// service.
	CodeAudienceMismatch Code = "AUTH_007"

	// CodeIssuerMismatch means iss is not the configured user pool.
	CodeIssuerMismatch Code = "AUTH_008"

	// CodeMissingSubject means a verified token carries no usable sub.
	CodeMissingSubject Code = "AUTH_009"

	// CodeUnsupportedAlgorithm means the header alg is outside the
	// asymmetric allow-list (this includes "none" and every HMAC alg).
	CodeUnsupportedAlgorithm Code = "AUTH_010"

	// CodeExchangeRejected means the identity provider answered the
	// code exchange with an OAuth2 error response.
	CodeExchangeRejected Code = "AUTH_011"

	// CodeCodeReplayed means the authorization code was already
	// presented to this service once.
	CodeCodeReplayed Code = "AUTH_012"

	// Authorization (403).

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationDenied indicates access to a resource is denied.
	CodeAuthorizationDenied Code = "AUTHZ_002"

	// Not found (404).

	// CodeNotFound is returned for unknown routes.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundResource means a task does not exist or belongs to
	// another owner. Callers cannot tell the two cases apart.
	CodeNotFoundResource Code = "NF_003"

	// Conflict (409).

	// CodeConflict indicates a state conflict, such as an invalid
	// lifecycle transition.
	CodeConflict Code = "CONF_001"

	// Internal (500).

	// CodeInternal indicates an unexpected server error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a failed query or a row that could
	// not be decoded.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates invalid configuration found at
	// startup.
	CodeInternalConfiguration Code = "INT_003"

	// CodeKeyFetch means the signing key set could not be retrieved or
	// parsed. Verification fails closed with a 500, never a 401.
	CodeKeyFetch Code = "INT_004"

	// Unavailable (503).

	// CodeUnavailable indicates the service cannot take requests.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a failed health check of a
	// dependency such as Postgres or Redis.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableOverloaded indicates the service is shedding load.
	CodeUnavailableOverloaded Code = "UNAVAIL_003"

	// CodeExchangeUnavailable means the token endpoint could not be
	// reached or answered with something other than an OAuth2 response.
	CodeExchangeUnavailable Code = "UNAVAIL_004"

	// Timeout (504).

	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a query exceeded its deadline.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeExchangeTimeout means the token endpoint did not answer within
	// the configured exchange timeout.
	CodeExchangeTimeout Code = "TIMEOUT_004"
)

// String returns the code text.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_004"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
