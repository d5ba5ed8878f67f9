package auth

// Secret is a string whose value is redacted when printed or serialised.
// Use Value only where the raw secret is needed, such as the client
// secret sent to the token endpoint.
type Secret string

// secretRedacted replaces the value wherever a Secret is rendered.
const secretRedacted = "[REDACTED]"

// String implements fmt.Stringer so %s and %v never print the value.
func (s Secret) String() string { return secretRedacted }

// GoString covers %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps secrets out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
