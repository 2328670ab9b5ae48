package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// FieldError is one constraint violation at a field path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports that a record does not satisfy its schema.
type ValidationError struct {
	SchemaID string       `json:"schema_id"`
	Errors   []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Path == "" {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, fe.Path+": "+fe.Message)
	}
	return fmt.Sprintf("schema %s: validation failed: %s", e.SchemaID, strings.Join(parts, "; "))
}

// Fields returns the distinct failing field paths, sorted.
func (e *ValidationError) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, fe := range e.Errors {
		if fe.Path != "" && !seen[fe.Path] {
			seen[fe.Path] = true
			out = append(out, fe.Path)
		}
	}
	sort.Strings(out)
	return out
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// newValidationError flattens a CUE error list into field errors.
// Paths are relative to the document: the leading #Document selector is dropped.
func newValidationError(schemaID string, err error) *ValidationError {
	ve := &ValidationError{SchemaID: schemaID}
	for _, e := range cueerrors.Errors(err) {
		path := e.Path()
		if len(path) > 0 && path[0] == DocumentDefinition {
			path = path[1:]
		}
		format, args := e.Msg()
		ve.Errors = append(ve.Errors, FieldError{
			Path:    strings.Join(path, "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	if len(ve.Errors) == 0 {
		ve.Errors = []FieldError{{Message: err.Error()}}
	}
	return ve
}
