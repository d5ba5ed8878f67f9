package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

type testSecret string

type providerSection struct {
	Domain   string     `env:"DOMAIN" yaml:"domain" json:"domain" required:"true"`
	ClientID string     `env:"CLIENT_ID" yaml:"client_id" json:"client_id"`
	Secret   testSecret `env:"CLIENT_SECRET" yaml:"-" json:"-"`
}

type appConfig struct {
	Addr     string          `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	Debug    bool            `env:"DEBUG" envDefault:"false" yaml:"debug" json:"debug"`
	Timeout  time.Duration   `env:"TIMEOUT" envDefault:"10s" yaml:"timeout" json:"timeout"`
	MaxConns int32           `env:"MAX_CONNS" envDefault:"25" yaml:"max_conns" json:"max_conns"`
	Redirect []string        `env:"REDIRECTS" yaml:"redirects" json:"redirects"`
	Provider providerSection `env:"COGNITO" yaml:"provider" json:"provider"`
}

type checkedConfig struct {
	Port int `env:"PORT" envDefault:"8080"`
}

func (c *checkedConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return apperr.Newf(apperr.CodeValidationRange, "config: port %d out of range", c.Port)
	}
	return nil
}

type plainCheckedConfig struct {
	Name string `env:"NAME"`
}

func (c *plainCheckedConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ===========================================================================
// Layering
// ===========================================================================

// TestLoad_DefaultsAndEnv verifies tag defaults, env overrides and nested
// prefixes.
func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("ZN_COGNITO_DOMAIN", "https://auth.example.com")
	t.Setenv("ZN_TIMEOUT", "3s")
	t.Setenv("ZN_REDIRECTS", "https://a.example/cb, https://b.example/cb,")

	var cfg appConfig
	require.NoError(t, New().WithEnvPrefix("zn").Load(&cfg))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, []string{"https://a.example/cb", "https://b.example/cb"}, cfg.Redirect)
	assert.Equal(t, "https://auth.example.com", cfg.Provider.Domain)
}

// TestLoad_RequiredMissing verifies VAL_002 with the dotted field path.
func TestLoad_RequiredMissing(t *testing.T) {
	var cfg appConfig
	err := New().WithEnvPrefix("ZN_MISSING").Load(&cfg)

	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationRequired))
	assert.Contains(t, err.Error(), "Provider.Domain")
}

// TestLoad_FileLayer verifies that a YAML file sits between defaults and
// the environment.
func TestLoad_FileLayer(t *testing.T) {
	path := writeFile(t, "config.yaml", `
addr: ":9090"
provider:
  domain: https://file.example.com
  client_id: from-file
`)
	t.Setenv("COGNITO_CLIENT_ID", "from-env")

	var cfg appConfig
	require.NoError(t, New().WithFile(path).Load(&cfg))

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "https://file.example.com", cfg.Provider.Domain)
	assert.Equal(t, "from-env", cfg.Provider.ClientID, "env must override file")
}

// TestLoad_JSONFile verifies the JSON decoder is chosen by extension.
func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"addr":":7070","provider":{"domain":"https://j.example"}}`)

	var cfg appConfig
	require.NoError(t, New().WithFile(path).Load(&cfg))
	assert.Equal(t, ":7070", cfg.Addr)
}

// TestLoad_DotEnvDoesNotOverrideEnvironment verifies that exported variables
// win over the dotenv file.
func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := writeFile(t, ".env", "COGNITO_DOMAIN=https://dotenv.example.com\nCOGNITO_CLIENT_ID=dotenv-client\n")
	t.Setenv("COGNITO_CLIENT_ID", "exported-client")
	// godotenv writes into the process environment; make sure the
	// variable is removed again when the test ends.
	t.Setenv("COGNITO_DOMAIN", "")
	require.NoError(t, os.Unsetenv("COGNITO_DOMAIN"))

	var cfg appConfig
	require.NoError(t, New().WithDotEnv(path).Load(&cfg))

	assert.Equal(t, "https://dotenv.example.com", cfg.Provider.Domain)
	assert.Equal(t, "exported-client", cfg.Provider.ClientID)
}

// TestLoad_MissingFilesAreSkipped verifies that absent optional files are not
// errors.
func TestLoad_MissingFilesAreSkipped(t *testing.T) {
	t.Setenv("COGNITO_DOMAIN", "https://auth.example.com")
	dir := t.TempDir()

	var cfg appConfig
	err := New().
		WithDotEnv(filepath.Join(dir, ".env")).
		WithFile(filepath.Join(dir, "absent.yaml")).
		Load(&cfg)
	require.NoError(t, err)
}

// ===========================================================================
// Failures
// ===========================================================================

// TestLoad_FileErrors verifies unsupported extensions, traversal and
// unparsable content.
func TestLoad_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"traversal", func(t *testing.T) string { return "../config.yaml" }},
		{"unsupported extension", func(t *testing.T) string { return writeFile(t, "config.toml", "a = 1") }},
		{"invalid yaml", func(t *testing.T) string { return writeFile(t, "bad.yaml", "addr: [unterminated") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg appConfig
			err := New().WithFile(tt.path(t)).Load(&cfg)
			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, apperr.CodeInternalConfiguration))
		})
	}
}

// TestLoad_BadEnvValue verifies INT_003 naming the offending variable.
func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("COGNITO_DOMAIN", "https://auth.example.com")
	t.Setenv("TIMEOUT", "soon")

	var cfg appConfig
	err := New().Load(&cfg)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInternalConfiguration))
	assert.Contains(t, err.Error(), "TIMEOUT")
}

// TestLoad_RejectsNonPointer verifies the target type check.
func TestLoad_RejectsNonPointer(t *testing.T) {
	err := New().Load(appConfig{})
	assert.True(t, apperr.HasCode(err, apperr.CodeInternalConfiguration))

	var nilPtr *appConfig
	err = New().Load(nilPtr)
	assert.True(t, apperr.HasCode(err, apperr.CodeInternalConfiguration))
}

// TestLoad_Validator verifies that Validate runs after loading and untyped
// errors are wrapped.
func TestLoad_Validator(t *testing.T) {
	t.Setenv("PORT", "70000")

	var cfg checkedConfig
	err := New().Load(&cfg)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationRange))

	var plain plainCheckedConfig
	err = New().Load(&plain)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}

// TestMustLoad_Panics verifies the panic on failure.
func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() {
		_ = MustLoad[appConfig](New().WithEnvPrefix("ZN_PANIC"))
	})
}
