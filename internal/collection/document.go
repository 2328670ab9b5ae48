package collection

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/reactive"
)

// Document is a handle on one stored document.
//
// Set writes into a private draft. Save hands a copy of the draft to the
// write pipeline; whether the save commits or fails, the draft is dropped
// afterwards, so reads after a failed save show the committed values.
type Document struct {
	coll  *Collection
	state *reactive.State

	mu       sync.Mutex
	draft    ir.Object
	draftGen uint64
}

// ID returns the primary key.
func (d *Document) ID() string {
	return d.state.ID()
}

// Revision returns the committed revision.
func (d *Document) Revision() string {
	return d.state.Revision()
}

// Deleted reports whether the document was removed.
func (d *Document) Deleted() bool {
	return d.state.Deleted()
}

// Committed returns the committed value of field, ignoring any draft.
func (d *Document) Committed(field string) (ir.Value, bool) {
	return d.state.Committed(field)
}

// State returns the document's reactive state.
func (d *Document) State() *reactive.State {
	return d.state
}

// Get returns field from the draft when there is one, else the committed value.
func (d *Document) Get(field string) (ir.Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draft != nil {
		v, ok := d.draft[field]
		if !ok {
			return nil, false
		}
		return ir.Clone(v), true
	}
	return d.state.Committed(field)
}

// Data returns a copy of the draft when there is one, else the committed record.
func (d *Document) Data() ir.Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draft != nil {
		return d.draft.Clone()
	}
	return d.state.Data()
}

// Dirty reports whether the document has unsaved changes.
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draft != nil
}

// Set writes field in the draft. Nothing is persisted or observable until Save.
func (d *Document) Set(field string, v ir.Value) error {
	return d.edit(func(draft ir.Object) {
		draft[field] = ir.Clone(v)
	})
}

// Unset removes field from the draft.
func (d *Document) Unset(field string) error {
	return d.edit(func(draft ir.Object) {
		delete(draft, field)
	})
}

func (d *Document) edit(fn func(ir.Object)) error {
	if d.Deleted() {
		return ErrDocumentRemoved
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draft == nil {
		d.draft = d.state.Data()
	}
	fn(d.draft)
	d.draftGen++
	return nil
}

// Discard drops unsaved changes.
func (d *Document) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draft = nil
	d.draftGen++
}

// takeDraft returns a copy of the current draft (or committed data) and its
// generation.
func (d *Document) takeDraft() (ir.Object, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draft != nil {
		return d.draft.Clone(), d.draftGen
	}
	return d.state.Data(), d.draftGen
}

// dropDraft discards the draft unless it was edited since gen.
func (d *Document) dropDraft(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draftGen == gen {
		d.draft = nil
	}
}

// Save runs the save pipeline with the current draft. Without a draft there
// is nothing to write: no hooks run and no revision is created.
func (d *Document) Save(ctx context.Context) error {
	if d.coll.isClosed() {
		return ErrCollectionClosed
	}
	if d.Deleted() {
		return ErrDocumentRemoved
	}
	if !d.Dirty() {
		return nil
	}

	draft, gen := d.takeDraft()
	_, err := d.coll.pipeline.Save(ctx, d, draft)
	d.dropDraft(gen)
	return err
}

// Remove runs the remove pipeline. Observers complete once it commits.
func (d *Document) Remove(ctx context.Context) error {
	if d.coll.isClosed() {
		return ErrCollectionClosed
	}
	if d.Deleted() {
		return ErrDocumentRemoved
	}

	_, err := d.coll.pipeline.Remove(ctx, d)
	if d.Deleted() {
		d.Discard()
	}
	return err
}

// Observe subscribes to a committed field. The current value is delivered first.
func (d *Document) Observe(field string) *reactive.FieldSubscription {
	return d.state.ObserveField(field)
}

// ObserveDocument subscribes to committed snapshots of the whole document.
func (d *Document) ObserveDocument() *reactive.DocumentSubscription {
	return d.state.Observe()
}

func (d *Document) String() string {
	return fmt.Sprintf("%s/%s@%s", d.coll.name, d.ID(), d.Revision())
}
