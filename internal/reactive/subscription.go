package reactive

import "sync"

// latest is a single-slot channel that keeps only the newest value.
type latest[T any] struct {
	mu        sync.Mutex
	ch        chan T
	version   uint64
	delivered bool
	done      bool
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{ch: make(chan T, 1)}
}

// deliver sends v unless this or a newer version was already delivered.
func (l *latest[T]) deliver(version uint64, v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done || (l.delivered && version <= l.version) {
		return
	}
	l.version = version
	l.delivered = true
	select {
	case <-l.ch:
	default:
	}
	l.ch <- v
}

func (l *latest[T]) complete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	close(l.ch)
}

// FieldSubscription observes one field of a document.
type FieldSubscription struct {
	*latest[FieldValue]
	state *State
	id    uint64
	field string
}

// C returns the channel of observed values. It is closed when the
// subscription is cancelled or the document is removed.
func (s *FieldSubscription) C() <-chan FieldValue {
	return s.ch
}

// Cancel stops the subscription and closes its channel.
func (s *FieldSubscription) Cancel() {
	s.state.mu.Lock()
	delete(s.state.fieldSub, s.id)
	s.state.mu.Unlock()
	s.complete()
}

// DocumentSubscription observes whole-document snapshots.
type DocumentSubscription struct {
	*latest[Snapshot]
	state *State
	id    uint64
}

// C returns the channel of observed snapshots. It is closed when the
// subscription is cancelled or the document is removed.
func (s *DocumentSubscription) C() <-chan Snapshot {
	return s.ch
}

// Cancel stops the subscription and closes its channel.
func (s *DocumentSubscription) Cancel() {
	s.state.mu.Lock()
	delete(s.state.docSub, s.id)
	s.state.mu.Unlock()
	s.complete()
}

// ObserveField subscribes to a field. The current committed value is
// delivered immediately, then every committed change. On a removed or
// closed state the channel holds the last value and is already closed.
func (s *State) ObserveField(field string) *FieldSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := &FieldSubscription{latest: newLatest[FieldValue](), state: s, id: s.nextSub, field: field}
	sub.deliver(s.version, fieldValue(s.snapshotLocked(), field))
	if s.closed {
		sub.complete()
		return sub
	}
	s.fieldSub[sub.id] = sub
	return sub
}

// Observe subscribes to whole-document snapshots, starting with the current one.
func (s *State) Observe() *DocumentSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := &DocumentSubscription{latest: newLatest[Snapshot](), state: s, id: s.nextSub}
	sub.deliver(s.version, s.snapshotLocked())
	if s.closed {
		sub.complete()
		return sub
	}
	s.docSub[sub.id] = sub
	return sub
}
