package reactive

import (
	"sync"

	"github.com/roach88/rxdoc/internal/ir"
)

// Snapshot is an immutable view of a document's committed state.
type Snapshot struct {
	ID      string
	Rev     string
	Data    ir.Object
	Deleted bool
}

// FieldValue is one observed value of a field. Present is false when the
// committed record does not hold the field.
type FieldValue struct {
	Value   ir.Value
	Present bool
	Rev     string
}

// State holds the last committed values of one document.
type State struct {
	mu       sync.RWMutex
	id       string
	rev      string
	data     ir.Object
	deleted  bool
	closed   bool
	version  uint64
	nextSub  uint64
	fieldSub map[uint64]*FieldSubscription
	docSub   map[uint64]*DocumentSubscription
}

// New creates a state for id with nothing committed yet.
func New(id string) *State {
	return &State{
		id:       id,
		data:     ir.Object{},
		fieldSub: make(map[uint64]*FieldSubscription),
		docSub:   make(map[uint64]*DocumentSubscription),
	}
}

// NewCommitted creates a state seeded from a stored document.
func NewCommitted(doc ir.StoredDocument) *State {
	s := New(doc.ID)
	s.rev = doc.Rev
	s.data = doc.Data.Clone()
	s.deleted = doc.Deleted
	s.closed = doc.Deleted
	return s
}

// ID returns the document's primary key.
func (s *State) ID() string {
	return s.id
}

// Revision returns the committed revision, empty before the first commit.
func (s *State) Revision() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Deleted reports whether a remove has been committed.
func (s *State) Deleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted
}

// Committed returns a deep copy of a committed field value.
func (s *State) Committed(field string) (ir.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[field]
	if !ok {
		return nil, false
	}
	return ir.Clone(v), true
}

// Data returns a deep copy of the committed record.
func (s *State) Data() ir.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Snapshot returns the committed state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{ID: s.id, Rev: s.rev, Data: s.data.Clone(), Deleted: s.deleted}
}

// Commit replaces the committed record with data at revision rev and
// notifies subscribers. Field subscribers are notified only for fields whose
// value changed. Committing the current revision again is a no-op, as is any
// commit after MarkDeleted.
func (s *State) Commit(rev string, data ir.Object) {
	s.mu.Lock()
	if s.deleted || s.closed || (rev != "" && rev == s.rev) {
		s.mu.Unlock()
		return
	}
	prev := s.data
	s.rev = rev
	s.data = data.Clone()
	s.version++

	version := s.version
	snap := s.snapshotLocked()
	fields := s.fieldSubsLocked()
	docs := s.docSubsLocked()
	s.mu.Unlock()

	for _, sub := range fields {
		if ir.Equal(prev[sub.field], snap.Data[sub.field]) {
			continue
		}
		sub.deliver(version, fieldValue(snap, sub.field))
	}
	for _, sub := range docs {
		sub.deliver(version, snap)
	}
}

// MarkDeleted records a committed remove at revision rev. Document
// subscribers receive the final snapshot, then every subscription completes.
// The last committed field values stay readable.
func (s *State) MarkDeleted(rev string) {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return
	}
	s.rev = rev
	s.deleted = true
	s.version++

	version := s.version
	snap := s.snapshotLocked()
	fields, docs := s.detachLocked()
	s.mu.Unlock()

	for _, sub := range docs {
		sub.deliver(version, snap)
		sub.complete()
	}
	for _, sub := range fields {
		sub.complete()
	}
}

// Close completes every subscription without changing committed values.
// Later commits are ignored.
func (s *State) Close() {
	s.mu.Lock()
	fields, docs := s.detachLocked()
	s.mu.Unlock()

	for _, sub := range docs {
		sub.complete()
	}
	for _, sub := range fields {
		sub.complete()
	}
}

func (s *State) detachLocked() ([]*FieldSubscription, []*DocumentSubscription) {
	s.closed = true
	fields := s.fieldSubsLocked()
	docs := s.docSubsLocked()
	clear(s.fieldSub)
	clear(s.docSub)
	return fields, docs
}

func (s *State) fieldSubsLocked() []*FieldSubscription {
	out := make([]*FieldSubscription, 0, len(s.fieldSub))
	for _, sub := range s.fieldSub {
		out = append(out, sub)
	}
	return out
}

func (s *State) docSubsLocked() []*DocumentSubscription {
	out := make([]*DocumentSubscription, 0, len(s.docSub))
	for _, sub := range s.docSub {
		out = append(out, sub)
	}
	return out
}

func fieldValue(snap Snapshot, field string) FieldValue {
	v, ok := snap.Data[field]
	if !ok {
		return FieldValue{Rev: snap.Rev}
	}
	return FieldValue{Value: v, Present: true, Rev: snap.Rev}
}
