package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/rxdoc/internal/ir"
)

// Registry maps schema ids to compiled schemas and validates records by id.
// It satisfies the write pipeline's Validator contract.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates a registry holding the given schemas.
func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.ID] = s
	}
	return r
}

// Add registers s, replacing nothing: a second schema with the same id is an error.
func (r *Registry) Add(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[s.ID]; exists {
		return fmt.Errorf("schema %q already registered", s.ID)
	}
	r.schemas[s.ID] = s
	return nil
}

// Get returns the schema with the given id.
func (r *Registry) Get(id string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[id]
	return s, ok
}

// Validate checks record against the schema registered under schemaID.
// The context is accepted for interface symmetry; validation does not block.
func (r *Registry) Validate(_ context.Context, schemaID string, record ir.Object) error {
	s, ok := r.Get(schemaID)
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaID)
	}
	return s.Validate(record)
}
