package schema

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rxdoc/internal/ir"
)

// DocumentDefinition is the definition every schema source must declare.
const DocumentDefinition = "#Document"

// Schema is a compiled, immutable document schema.
//
// cue.Value is not safe for concurrent use, so every operation on the
// underlying definition holds mu.
type Schema struct {
	ID         string
	PrimaryKey string

	mu     sync.Mutex
	def    cue.Value
	fields []Field
}

// Field describes one top-level field of a schema.
type Field struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional"`
	Primary  bool   `json:"primary"`
}

// CompileError reports a schema source that cannot be compiled.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile parses CUE source into a Schema identified by id.
func Compile(id, src string) (*Schema, error) {
	return compile(id, src, "")
}

// CompileFile reads and compiles a schema source file.
func CompileFile(id, path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return compile(id, string(data), path)
}

func compile(id, src, filename string) (*Schema, error) {
	if id == "" {
		return nil, &CompileError{Field: "id", Message: "schema id is required"}
	}

	ctx := cuecontext.New()
	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}
	root := ctx.CompileString(src, opts...)
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := root.LookupPath(cue.ParsePath(DocumentDefinition))
	if !def.Exists() {
		return nil, &CompileError{
			Field:   DocumentDefinition,
			Message: "schema must declare " + DocumentDefinition,
			Pos:     root.Pos(),
		}
	}
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{ID: id, def: def}
	if err := s.parseFields(); err != nil {
		return nil, err
	}
	return s, nil
}

// parseFields records top-level fields and locates the primary key.
func (s *Schema) parseFields() error {
	iter, err := s.def.Fields(cue.Optional(true))
	if err != nil {
		return formatCUEError(err)
	}

	for iter.Next() {
		f := Field{
			Name:     unquoteLabel(iter.Label()),
			Optional: iter.IsOptional(),
		}
		if attr := iter.Value().Attribute("primary"); attr.Err() == nil {
			if s.PrimaryKey != "" {
				return &CompileError{
					Field:   f.Name,
					Message: fmt.Sprintf("duplicate @primary() (already on %q)", s.PrimaryKey),
					Pos:     iter.Value().Pos(),
				}
			}
			if f.Optional {
				return &CompileError{
					Field:   f.Name,
					Message: "primary key must be a required field",
					Pos:     iter.Value().Pos(),
				}
			}
			f.Primary = true
			s.PrimaryKey = f.Name
		}
		s.fields = append(s.fields, f)
	}

	if s.PrimaryKey == "" {
		return &CompileError{
			Field:   DocumentDefinition,
			Message: "exactly one field must carry @primary()",
			Pos:     s.def.Pos(),
		}
	}
	return nil
}

func unquoteLabel(label string) string {
	if strings.HasPrefix(label, `"`) {
		if unq, err := strconv.Unquote(label); err == nil {
			return unq
		}
	}
	return label
}

// Fields returns the schema's top-level fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Validate checks record against the schema. It returns nil or a *ValidationError.
func (s *Schema) Validate(record ir.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.def.Context().Encode(ir.ToAny(record))
	if err := candidate.Err(); err != nil {
		return &ValidationError{
			SchemaID: s.ID,
			Errors:   []FieldError{{Message: err.Error()}},
		}
	}

	unified := s.def.Unify(candidate)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return newValidationError(s.ID, err)
	}
	return nil
}

// formatCUEError converts the first CUE error into a CompileError with position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
