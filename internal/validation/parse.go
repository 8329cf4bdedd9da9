package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"opsportal/internal/models"
)

// FieldErrors aliases the model type so request structs can implement
// Validator without importing this package.
type FieldErrors = models.FieldErrors

// Result is the tagged outcome of parsing: exactly one of Data (when
// Failure is nil) or Failure is meaningful.
type Result[T any] struct {
	Data    T
	Failure *Failure
}

// OK reports whether the body conformed to the schema.
func (r Result[T]) OK() bool {
	return r.Failure == nil
}

// Failure is a ready-to-send 400 response.
type Failure struct {
	Status int
	Body   *models.ValidationErrorResponse
}

// Respond writes the failure as a JSON response.
func (f *Failure) Respond(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.Status)
	_ = json.NewEncoder(w).Encode(f.Body)
}

// ParseJSON reads r's body and validates it against schema. At most the
// schema's limit plus one byte is read before the body is closed. Unparsable
// JSON is treated as an empty object so that missing-field errors, not
// syntax errors, are reported.
func ParseJSON[T any](r *http.Request, schema *Schema[T]) Result[T] {
	raw, tooLarge := readBody(r, schema.maxBytes)
	if tooLarge {
		return fail[T]([]string{"Request body too large"}, nil)
	}
	return schema.Parse(raw)
}

// Parse validates raw JSON bytes against the schema.
func (s *Schema[T]) Parse(raw []byte) Result[T] {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		obj = map[string]json.RawMessage{}
	}

	var formErrs []string
	var fieldErrs FieldErrors

	if s.strict {
		if unknown := s.unknownKeys(obj); len(unknown) > 0 {
			formErrs = append(formErrs, fmt.Sprintf("Unrecognized key(s) in object: %s", quoteJoin(unknown)))
		}
	}

	failed := make(map[string]bool)
	for _, name := range s.required {
		if v, ok := obj[name]; !ok || isNull(v) {
			fieldErrs.Add(name, name+" is required")
			failed[name] = true
		}
	}

	known := make(map[string]json.RawMessage, len(obj))
	for name, v := range obj {
		if _, ok := s.known[name]; ok && !failed[name] {
			known[name] = v
		}
	}

	var data T
	if filtered, err := json.Marshal(known); err == nil {
		if err := json.Unmarshal(filtered, &data); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field != "" {
				fieldErrs.Add(typeErr.Field, fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type))
			} else {
				formErrs = append(formErrs, "Invalid request body")
			}
		}
	}

	if len(fieldErrs) == 0 {
		if v, ok := any(&data).(Validator); ok {
			fieldErrs = append(fieldErrs, v.Validate()...)
		}
	}

	if len(formErrs) > 0 || len(fieldErrs) > 0 {
		return fail[T](formErrs, fieldErrs)
	}
	return Result[T]{Data: data}
}

func (s *Schema[T]) unknownKeys(obj map[string]json.RawMessage) []string {
	var unknown []string
	for name := range obj {
		if _, ok := s.known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func fail[T any](formErrs []string, fieldErrs FieldErrors) Result[T] {
	return Result[T]{
		Failure: &Failure{
			Status: http.StatusBadRequest,
			Body:   models.NewValidationErrorResponse(formErrs, fieldErrs),
		},
	}
}

// readBody reads at most limit bytes and closes the body. An oversized
// body is not drained; net/http closes the connection instead.
func readBody(r *http.Request, limit int64) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false
	}
	body := http.MaxBytesReader(nil, r.Body, limit)
	defer body.Close()

	data, err := io.ReadAll(body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, true
	}
	if err != nil {
		return nil, false
	}
	return data, false
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}

func quoteJoin(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = "'" + k + "'"
	}
	return strings.Join(quoted, ", ")
}
