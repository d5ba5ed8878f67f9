package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// Codes
// ===========================================================================

// TestCode_Category verifies prefix extraction.
func TestCode_Category(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want string
	}{
		{CodeAuthNotFound, "AUTH"},
		{CodeMalformedToken, "VAL"},
		{CodeKeyFetch, "INT"},
		{CodeExchangeTimeout, "TIMEOUT"},
		{Code("NOUNDERSCORE"), "NOUNDERSCORE"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Category())
		})
	}
}

// TestError_HTTPStatus verifies the status of every category.
func TestError_HTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want int
	}{
		{CodeMalformedToken, http.StatusBadRequest},
		{CodeAuthNotFound, http.StatusUnauthorized},
		{CodeUnknownKey, http.StatusUnauthorized},
		{CodeBadSignature, http.StatusUnauthorized},
		{CodeAudienceMismatch, http.StatusUnauthorized},
		{CodeIssuerMismatch, http.StatusUnauthorized},
		{CodeMissingSubject, http.StatusUnauthorized},
		{CodeUnsupportedAlgorithm, http.StatusUnauthorized},
		{CodeExchangeRejected, http.StatusUnauthorized},
		{CodeCodeReplayed, http.StatusUnauthorized},
		{CodeAuthorizationDenied, http.StatusForbidden},
		{CodeNotFoundResource, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeKeyFetch, http.StatusInternalServerError},
		{CodeExchangeUnavailable, http.StatusServiceUnavailable},
		{CodeExchangeTimeout, http.StatusGatewayTimeout},
		{Code("WEIRD_1"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus())
		})
	}
}

// ===========================================================================
// Construction and wrapping
// ===========================================================================

// TestWrap_NilPassthrough verifies that wrapping nil yields nil.
func TestWrap_NilPassthrough(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Wrap(nil, CodeInternal, "unused"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "unused %d", 1))
}

// TestWrap_PreservesChain verifies errors.Is and errors.As through a wrap.
func TestWrap_PreservesChain(t *testing.T) {
	t.Parallel()
	root := errors.New("dial tcp: refused")
	err := Wrap(root, CodeKeyFetch, "auth: key set unavailable")

	assert.ErrorIs(t, err, root)
	assert.Equal(t, "INT_004: auth: key set unavailable: dial tcp: refused", err.Error())

	outer := fmt.Errorf("verify: %w", err)
	assert.True(t, HasCode(outer, CodeKeyFetch))
	assert.True(t, IsInternal(outer))
	assert.False(t, IsAuthentication(outer))
}

// TestWithDetails_DoesNotMutate verifies the copy-on-write contract.
func TestWithDetails_DoesNotMutate(t *testing.T) {
	t.Parallel()
	base := New(CodeExchangeRejected, "Invalid JWT token").WithDetail("error", "invalid_grant")
	extended := base.WithDetail("error_description", "code used")

	assert.Len(t, base.Details, 1)
	assert.Len(t, extended.Details, 2)
	assert.Equal(t, "invalid_grant", extended.Details["error"])
}

// ===========================================================================
// Logging
// ===========================================================================

// TestLogValue verifies the slog group rendering.
func TestLogValue(t *testing.T) {
	t.Parallel()
	err := Wrap(errors.New("boom"), CodeInternal, "failed").WithDetail("k", "v")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Error("request failed", "error", err)

	var line struct {
		Error map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, map[string]string{
		"code":     "INT_001",
		"message":  "failed",
		"detail.k": "v",
		"cause":    "boom",
	}, line.Error)
	assert.Equal(t, "INT_001: failed: boom", err.Error())
}

// ===========================================================================
// Classification
// ===========================================================================

// TestFromError verifies that foreign errors become INT_001.
func TestFromError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FromError(nil))

	typed := New(CodeAuthNotFound, "missing")
	assert.Same(t, typed, FromError(fmt.Errorf("ctx: %w", typed)))

	foreign := FromError(errors.New("raw"))
	assert.Equal(t, CodeInternal, foreign.Code)
}

// TestIsRetryable verifies that only TIMEOUT and UNAVAIL retry.
func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(New(CodeExchangeTimeout, "t")))
	assert.True(t, IsRetryable(New(CodeExchangeUnavailable, "u")))
	assert.False(t, IsRetryable(New(CodeExchangeRejected, "r")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

// TestIsClientError verifies the 4xx predicate.
func TestIsClientError(t *testing.T) {
	t.Parallel()
	assert.True(t, IsClientError(New(CodeMalformedToken, "m")))
	assert.True(t, IsClientError(New(CodeCodeReplayed, "r")))
	assert.False(t, IsClientError(New(CodeKeyFetch, "k")))
	assert.False(t, IsClientError(errors.New("plain")))
}

// ===========================================================================
// Responses
// ===========================================================================

// TestWriteJSON verifies the rejection body and headers.
func TestWriteJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "auth not found",
			err:         New(CodeAuthNotFound, "Authorization header missing"),
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "401",
			wantMessage: "Authorization header missing",
		},
		{
			name:        "malformed token",
			err:         New(CodeMalformedToken, "Malformed JWT token"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "400",
			wantMessage: "Malformed JWT token",
		},
		{
			name:        "cause hidden",
			err:         Wrap(errors.New("secret internal detail"), CodeKeyFetch, "Token verification unavailable"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "500",
			wantMessage: "Token verification unavailable",
		},
		{
			name:        "foreign error",
			err:         errors.New("secret internal detail"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "500",
			wantMessage: "Internal Server Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			status := WriteJSON(rr, tt.err)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.NotContains(t, rr.Body.String(), "secret internal detail")

			var body Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMessage, body.Message)
		})
	}
}
