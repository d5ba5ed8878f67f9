// Package config loads zeronote's process configuration from struct tag
// defaults, an optional .env file, an optional YAML/JSON file and the
// environment, in that order of increasing priority:
//
//	envDefault tags  <  .env file  <  YAML/JSON file  <  environment
//
// A .env file only fills variables that are not already set, so a value
// exported by the deployment always wins over one committed to disk.
//
// Tags:
//
//   - `env:"NAME"` binds a field to an environment variable. On a nested
//     struct field the tag becomes a prefix ("DB" + "HOST" -> DB_HOST).
//   - `envDefault:"value"` applies when the field is still zero.
//   - `required:"true"` fails loading when the field is zero afterwards.
//
// Configuration problems surface from [Loader.Load] or [MustLoad] at
// process start, never lazily at request time:
//
//	cfg := config.MustLoad[Config](config.New().WithDotEnv(".env"))
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// durationType is set from strings like "5s" rather than walked as a
// nested struct or parsed as a plain integer.
var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration into a struct. It is not safe for
// concurrent use; build one per Load.
type Loader struct {
	envPrefix  string
	filePath   string
	dotEnvPath string
}

// New returns a Loader that reads only tag defaults and the environment.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends PREFIX_ to every variable name. The prefix is
// uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile adds a .yaml/.yml/.json file layer. A missing file is skipped.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithDotEnv adds a dotenv layer read with godotenv. A missing file is
// skipped; variables already present in the environment are kept.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, and then
// validates it. Loading failures carry [apperr.CodeInternalConfiguration];
// missing required fields carry [apperr.CodeValidationRequired].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return apperr.New(apperr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.dotEnvPath != "" {
		if err := l.loadDotEnv(); err != nil {
			return err
		}
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	if err := applyEnv(rv, l.envPrefix); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Intended for main.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// ===========================================================================
// Layers
// ===========================================================================

// loadDotEnv exports the dotenv file into the process environment so the
// environment layer picks it up.
func (l *Loader) loadDotEnv() error {
	err := godotenv.Load(l.dotEnvPath)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
		"config: failed to read dotenv file %q", l.dotEnvPath)
}

// loadFile decodes the YAML or JSON file over cfg, selected by extension.
// Paths containing ".." are refused.
func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return apperr.New(apperr.CodeInternalConfiguration,
			"config: file path must not contain '..'")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return apperr.Newf(apperr.CodeInternalConfiguration,
			"config: unsupported file extension %q", ext)
	}
	if err != nil {
		return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}

// ===========================================================================
// Reflection helpers
// ===========================================================================

// isNested reports whether a field should be walked into rather than set.
func isNested(field reflect.Value) bool {
	return field.Kind() == reflect.Struct && field.Type() != durationType
}

// applyDefaults sets envDefault values on fields that are still zero.
func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if isNested(field) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}
		def, ok := sf.Tag.Lookup("envDefault")
		if !ok || !field.IsZero() {
			continue
		}
		if err := setField(field, def); err != nil {
			return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
				"config: bad default for field %q", sf.Name)
		}
	}
	return nil
}

// applyEnv overwrites fields whose variable is set, even to the empty
// string. Nested structs extend the prefix with their own env tag.
func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		name := sf.Tag.Get("env")
		if isNested(field) {
			if err := applyEnv(field, joinEnv(prefix, name)); err != nil {
				return err
			}
			continue
		}
		if name == "" {
			continue
		}
		key := joinEnv(prefix, name)
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(field, val); err != nil {
			return apperr.Wrapf(err, apperr.CodeInternalConfiguration,
				"config: bad value for %s", key)
		}
	}
	return nil
}

// joinEnv joins non-empty parts with an underscore.
func joinEnv(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field. Supported kinds: string (and named
// string types such as Secret), bool, signed ints, time.Duration and
// []string (comma separated).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				slice = reflect.Append(slice, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
