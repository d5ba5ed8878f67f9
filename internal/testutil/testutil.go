// Package testutil provides shared test helpers for zeronote.
//
// Helpers accept [testing.TB] and call t.Helper() so that failures point
// at the caller. Functions that halt the test use [require]; functions
// that only record a failure use [assert].
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *apperr.Error carrying
// code.
//
//	_, err := verifier.Verify(ctx, token, aud, iss)
//	testutil.RequireErrorCode(t, err, apperr.CodeAudienceMismatch)
func RequireErrorCode(t testing.TB, err error, code apperr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	e, ok := apperr.AsError(err)
	require.True(t, ok, "expected *apperr.Error, got %T: %v", err, err)
	require.Equal(t, code, e.Code,
		"error code mismatch: got %q, want %q (message: %s)", e.Code, code, e.Message)
}

// AssertErrorCode is RequireErrorCode without halting, for table tests.
func AssertErrorCode(t testing.TB, err error, code apperr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	e, ok := apperr.AsError(err)
	if !assert.True(t, ok, "expected *apperr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, e.Code,
		"error code mismatch: got %q, want %q (message: %s)", e.Code, code, e.Message)
}

// TempFile writes content to name inside t.TempDir() with mode 0600.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write temp file %s", path)
	return path
}

// DecodeRejection decodes the JSON rejection body written by
// apperr.WriteJSON and checks the status line against it.
func DecodeRejection(t testing.TB, rec *httptest.ResponseRecorder, wantStatus int) apperr.Response {
	t.Helper()
	require.Equal(t, wantStatus, rec.Code, "body: %s", rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body apperr.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
