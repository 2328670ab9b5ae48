package hooks

import (
	"sync"

	"github.com/roach88/rxdoc/internal/ir"
)

// SubjectKind tells a hook what its subject carries.
type SubjectKind int

const (
	// SubjectRawRecord is a plain record about to be inserted.
	SubjectRawRecord SubjectKind = iota

	// SubjectDraft is the working copy of a document about to be saved or removed.
	SubjectDraft

	// SubjectCommitted is a document whose write has been persisted.
	SubjectCommitted
)

func (k SubjectKind) String() string {
	switch k {
	case SubjectRawRecord:
		return "raw_record"
	case SubjectDraft:
		return "draft"
	case SubjectCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Subject is what a hook receives.
//
// Pre-insert hooks get a raw record; pre-save and pre-remove hooks get a
// draft; post hooks get the committed document. In every case Record is the
// working data for the attempt: mutations made by a pre hook are what gets
// validated and persisted. Post-hook mutations change nothing stored.
//
// Hooks in a parallel group share one Subject; use Get and Set (which are
// mutex protected) instead of touching Record directly when they may race.
type Subject struct {
	Kind       SubjectKind
	Operation  Operation
	Phase      Phase
	Collection string

	// ID is the primary key. Empty for an insert whose record has none yet.
	ID string

	// Revision is the committed revision the write starts from (pre) or the
	// revision it produced (post). Empty before an insert.
	Revision string

	// Deleted is set on the committed subject of a remove.
	Deleted bool

	Record ir.Object

	// Document is the handle the write targets. Nil for a raw record; for
	// post hooks it reflects the values just committed.
	Document DocumentView

	mu sync.Mutex
}

// DocumentView is the committed side of a document handle.
type DocumentView interface {
	ID() string
	Revision() string
	Deleted() bool
	Committed(field string) (ir.Value, bool)
}

// Get returns a deep copy of a field of Record.
func (s *Subject) Get(field string) (ir.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Record[field]
	if !ok {
		return nil, false
	}
	return ir.Clone(v), true
}

// Set writes a field of Record.
func (s *Subject) Set(field string, v ir.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Record == nil {
		s.Record = ir.Object{}
	}
	s.Record[field] = v
}

// Delete removes a field from Record.
func (s *Subject) Delete(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Record, field)
}

// Snapshot returns a deep copy of Record.
func (s *Subject) Snapshot() ir.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Record.Clone()
}
