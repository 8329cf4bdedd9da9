// Package validation parses JSON request bodies against schemas derived from
// Go request types. Parsing never panics and never returns an error: the
// result is either the decoded value or a ready-to-send 400 response.
package validation

import (
	"github.com/invopop/jsonschema"
)

// DefaultMaxBodyBytes bounds how much of a request body is read.
const DefaultMaxBodyBytes int64 = 1 << 20

// Validator is implemented by request types with semantic checks that a
// schema cannot express (non-blank strings, cross-field rules).
type Validator interface {
	Validate() FieldErrors
}

// Schema is the declared shape of a request body of type T. Field names,
// their order and the required set come from T's json and jsonschema tags.
type Schema[T any] struct {
	fields   []string
	known    map[string]struct{}
	required []string
	strict   bool
	maxBytes int64
}

// Option configures a Schema.
type Option func(*schemaOptions)

type schemaOptions struct {
	strict   bool
	maxBytes int64
}

// Strict rejects keys that T does not declare instead of dropping them.
func Strict() Option {
	return func(o *schemaOptions) { o.strict = true }
}

// MaxBytes overrides the body size limit.
func MaxBytes(n int64) Option {
	return func(o *schemaOptions) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// NewSchema reflects T into a schema. T must be a struct type.
func NewSchema[T any](opts ...Option) *Schema[T] {
	o := schemaOptions{maxBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}

	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	reflected := reflector.Reflect(new(T))

	s := &Schema[T]{
		known:    make(map[string]struct{}),
		required: append([]string(nil), reflected.Required...),
		strict:   o.strict,
		maxBytes: o.maxBytes,
	}
	if reflected.Properties != nil {
		for pair := reflected.Properties.Oldest(); pair != nil; pair = pair.Next() {
			s.fields = append(s.fields, pair.Key)
			s.known[pair.Key] = struct{}{}
		}
	}
	return s
}

// Fields returns the declared property names in declaration order.
func (s *Schema[T]) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Required returns the names of required properties.
func (s *Schema[T]) Required() []string {
	return append([]string(nil), s.required...)
}

// IsStrict reports whether unknown keys are rejected.
func (s *Schema[T]) IsStrict() bool {
	return s.strict
}
