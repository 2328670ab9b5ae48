package hooks

import (
	"context"
	"fmt"
	"sync"
)

// Operation is a write operation a hook can attach to.
type Operation string

const (
	OpInsert Operation = "insert"
	OpSave   Operation = "save"
	OpRemove Operation = "remove"
)

// Operations lists every operation in a fixed order.
var Operations = []Operation{OpInsert, OpSave, OpRemove}

// Phase is when a hook runs relative to persistence.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Phases lists both phases in execution order.
var Phases = []Phase{PhasePre, PhasePost}

// Mode selects the series or parallel list of a bucket.
type Mode string

const (
	ModeSeries   Mode = "series"
	ModeParallel Mode = "parallel"
)

// ParseOperation parses an operation name.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpInsert, OpSave, OpRemove:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// ParsePhase parses a phase name.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhasePre, PhasePost:
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// ParseMode parses a mode name. The empty string means series.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeSeries, nil
	case ModeSeries, ModeParallel:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Hook is a user callback on the write path.
//
// A hook that starts background work must wait for it before returning: the
// pipeline treats the return as completion. A non-nil error aborts a pre
// phase and is surfaced by a post phase.
type Hook func(ctx context.Context, subj *Subject) error

// Bucket holds the hooks for one (operation, phase) pair.
type Bucket struct {
	Series   []Hook
	Parallel []Hook
}

// Empty reports whether the bucket holds no hooks.
func (b Bucket) Empty() bool {
	return len(b.Series) == 0 && len(b.Parallel) == 0
}

type key struct {
	op    Operation
	phase Phase
}

// Registry maps (operation, phase) to a Bucket. Safe for concurrent use.
// Each collection owns its own Registry.
type Registry struct {
	mu      sync.RWMutex
	buckets map[key]*Bucket
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[key]*Bucket)}
}

// Register appends fn to the series or parallel list of (op, phase).
//
// Registration never fails and never validates fn. A nil hook is stored and
// skipped when the bucket runs.
func (r *Registry) Register(op Operation, phase Phase, mode Mode, fn Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{op, phase}
	b, ok := r.buckets[k]
	if !ok {
		b = &Bucket{}
		r.buckets[k] = b
	}
	if mode == ModeParallel {
		b.Parallel = append(b.Parallel, fn)
	} else {
		b.Series = append(b.Series, fn)
	}
}

// Lookup returns a copy of the bucket for (op, phase). Hooks registered
// after Lookup returns do not appear in the copy. Both lists are non-nil.
func (r *Registry) Lookup(op Operation, phase Phase) Bucket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := Bucket{Series: []Hook{}, Parallel: []Hook{}}
	if b, ok := r.buckets[key{op, phase}]; ok {
		out.Series = append(out.Series, b.Series...)
		out.Parallel = append(out.Parallel, b.Parallel...)
	}
	return out
}

// Len returns the series and parallel counts for (op, phase).
func (r *Registry) Len(op Operation, phase Phase) (series, parallel int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.buckets[key{op, phase}]; ok {
		return len(b.Series), len(b.Parallel)
	}
	return 0, 0
}
