package config

import (
	"reflect"

	apperr "github.com/17ms/zeronote/pkg/errors"
)

// Validator is implemented by config structs that need checks beyond
// `required` tags, such as deriving endpoint URLs and rejecting
// inconsistent combinations. It runs after every layer is applied.
type Validator interface {
	Validate() error
}

// validate runs the required-tag walk and then cfg's own Validate, if
// any. Untyped errors from Validate are wrapped as [apperr.CodeValidation].
func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, typed := apperr.AsError(err); typed {
			return err
		}
		return apperr.Wrap(err, apperr.CodeValidation, "config: validation failed")
	}
	return nil
}

// validateRequired walks nested structs and reports the first zero field
// tagged required:"true" by its dotted path (e.g. "Provider.ClientID").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		if isNested(field) {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return apperr.Newf(apperr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
