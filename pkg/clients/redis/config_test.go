package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// ===========================================================================
// Config
// ===========================================================================

// TestConfig_ValidateDefaults verifies that zero fields receive defaults.
func TestConfig_ValidateDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
}

// TestConfig_ValidateErrors verifies each rejected setting.
func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		code apperr.Code
	}{
		{"bad scheme", Config{URL: "http://localhost"}, apperr.CodeValidationFormat},
		{"unparseable url", Config{URL: "redis://%zz"}, apperr.CodeValidationFormat},
		{"negative pool", Config{PoolSize: -1}, apperr.CodeValidationRange},
		{"negative db", Config{DB: -1}, apperr.CodeValidationRange},
		{"negative timeout", Config{ReadTimeout: -time.Second}, apperr.CodeValidationRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.True(t, apperr.HasCode(err, tt.code), "got %v", err)
		})
	}
}

// ===========================================================================
// Secret
// ===========================================================================

// TestSecret_Redacted verifies that the password never prints.
func TestSecret_Redacted(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())
	assert.Equal(t, "hunter2", s.Value())
	b, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(b))
}
