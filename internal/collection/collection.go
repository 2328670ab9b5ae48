package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/rxdoc/internal/engine"
	"github.com/roach88/rxdoc/internal/hooks"
	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/reactive"
	"github.com/roach88/rxdoc/internal/schema"
	"github.com/roach88/rxdoc/internal/store"
	"github.com/roach88/rxdoc/internal/telemetry"
)

var (
	// ErrCollectionClosed is returned by every operation after Close.
	ErrCollectionClosed = errors.New("collection closed")

	// ErrDocumentRemoved is returned when writing through a removed document.
	ErrDocumentRemoved = errors.New("document removed")
)

// Storage is what a collection needs from its backing store.
// Implemented by *store.Collection. Get reports store.ErrNotFound for an
// unknown id.
type Storage interface {
	engine.Adapter
	Get(ctx context.Context, id string) (ir.StoredDocument, error)
	List(ctx context.Context, includeDeleted bool) ([]ir.StoredDocument, error)
}

// Collection binds one schema, one hook registry and one write pipeline.
type Collection struct {
	name     string
	schema   *schema.Schema
	storage  Storage
	registry *hooks.Registry
	pipeline *engine.Pipeline
	ids      engine.IDGenerator
	log      *telemetry.Logger

	mu     sync.Mutex
	docs   map[string]*Document
	closed bool
}

type options struct {
	validator engine.Validator
	ids       engine.IDGenerator
	log       *telemetry.Logger
	metrics   *telemetry.Metrics
	sequencer engine.Sequencer
}

// Option configures a Collection.
type Option func(*options)

// WithValidator overrides the validator. Default: the collection's schema.
func WithValidator(v engine.Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// WithIDGenerator sets how missing primary keys are filled.
// Default: engine.UUIDv7Generator.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSequencer sets the pipeline's attempt counter.
func WithSequencer(s engine.Sequencer) Option {
	return func(o *options) {
		o.sequencer = s
	}
}

// New creates a collection over storage, validated by sch.
func New(name string, sch *schema.Schema, storage Storage, opts ...Option) *Collection {
	o := options{
		validator: schema.NewRegistry(sch),
		ids:       engine.UUIDv7Generator{},
		log:       telemetry.Nop(),
		metrics:   telemetry.NewMetrics(telemetry.MetricsConfig{}),
		sequencer: engine.NewClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Collection{
		name:     name,
		schema:   sch,
		storage:  storage,
		registry: hooks.NewRegistry(),
		ids:      o.ids,
		log:      o.log.NewComponentLogger("collection").WithCollection(name),
		docs:     make(map[string]*Document),
	}
	c.pipeline = engine.NewPipeline(name, sch.ID, sch.PrimaryKey, c.registry, o.validator, storage,
		engine.WithLogger(o.log),
		engine.WithMetrics(o.metrics),
		engine.WithSequencer(o.sequencer),
		engine.WithResolver(c.bind),
	)
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Schema returns the collection's schema.
func (c *Collection) Schema() *schema.Schema {
	return c.schema
}

// RegisterHook appends fn to the (op, phase) bucket in the given mode.
func (c *Collection) RegisterHook(op hooks.Operation, phase hooks.Phase, mode hooks.Mode, fn hooks.Hook) {
	c.registry.Register(op, phase, mode, fn)
}

// Hooks returns a copy of the (op, phase) bucket.
func (c *Collection) Hooks(op hooks.Operation, phase hooks.Phase) hooks.Bucket {
	return c.registry.Lookup(op, phase)
}

func modeOf(parallel bool) hooks.Mode {
	if parallel {
		return hooks.ModeParallel
	}
	return hooks.ModeSeries
}

// PreInsert registers a pre-insert hook.
func (c *Collection) PreInsert(fn hooks.Hook, parallel bool) {
	c.RegisterHook(hooks.OpInsert, hooks.PhasePre, modeOf(parallel), fn)
}

// PostInsert registers a post-insert hook.
func (c *Collection) PostInsert(fn hooks.Hook, parallel bool) {
	c.RegisterHook(hooks.OpInsert, hooks.PhasePost, modeOf(parallel), fn)
}

// PreSave registers a pre-save hook.
func (c *Collection) PreSave(fn hooks.Hook, parallel bool) {
	c.RegisterHook(hooks.OpSave, hooks.PhasePre, modeOf(parallel), fn)
}

// PostSave registers a post-save hook.
func (c *Collection) PostSave(fn hooks.Hook, parallel bool) {
	c.RegisterHook(hooks.OpSave, hooks.PhasePost, modeOf(parallel), fn)
}

// PreRemove registers a pre-remove hook.
func (c *Collection) PreRemove(fn hooks.Hook, parallel bool) {
	c.RegisterHook(hooks.OpRemove, hooks.PhasePre, modeOf(parallel), fn)
}

// PostRemove registers a post-remove hook.
func (c *Collection) PostRemove(fn hooks.Hook, parallel bool) {
	c.RegisterHook(hooks.OpRemove, hooks.PhasePost, modeOf(parallel), fn)
}

// Insert runs the insert pipeline for record and returns the new document.
//
// A record without a primary key gets one from the id generator before the
// pre hooks run. On a post hook failure both the committed document and
// the error are returned.
func (c *Collection) Insert(ctx context.Context, record ir.Object) (*Document, error) {
	if c.isClosed() {
		return nil, ErrCollectionClosed
	}

	rec := record.Clone()
	if _, ok := rec[c.schema.PrimaryKey]; !ok {
		rec[c.schema.PrimaryKey] = ir.String(c.ids.Generate())
	}

	res, err := c.pipeline.Insert(ctx, rec)
	if res.Target == nil {
		return nil, err
	}
	return res.Target.(*Document), err
}

// FindOne returns the live document with primary key id, or nil when no such
// document exists or it was removed.
func (c *Collection) FindOne(ctx context.Context, id string) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}
	if doc, ok := c.docs[id]; ok && !doc.Deleted() {
		return doc, nil
	}

	stored, err := c.storage.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", c.name, id, err)
	}
	if stored.Deleted {
		delete(c.docs, id)
		return nil, nil
	}

	doc := c.newDocument(reactive.NewCommitted(stored))
	c.docs[id] = doc
	return doc, nil
}

// Find returns every live document, oldest write first.
func (c *Collection) Find(ctx context.Context) ([]*Document, error) {
	if c.isClosed() {
		return nil, ErrCollectionClosed
	}

	stored, err := c.storage.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}

	docs := make([]*Document, 0, len(stored))
	for _, s := range stored {
		doc, err := c.FindOne(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Close completes every observer of every cached document. Later
// operations return ErrCollectionClosed.
func (c *Collection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	docs := make([]*Document, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, doc)
	}
	clear(c.docs)
	c.mu.Unlock()

	for _, doc := range docs {
		doc.state.Close()
	}
	c.log.Debug("collection closed")
}

func (c *Collection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// bind is the pipeline's resolver for inserts. A live handle cached for the
// id (a read that raced the insert) is reused so the id keeps one reactive
// state; the pipeline then commits into it. Removed handles are replaced.
func (c *Collection) bind(stored ir.StoredDocument) engine.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.docs[stored.ID]; ok && !doc.Deleted() {
		return doc
	}

	doc := c.newDocument(reactive.New(stored.ID))
	if !c.closed {
		c.docs[stored.ID] = doc
	}
	return doc
}

func (c *Collection) newDocument(state *reactive.State) *Document {
	return &Document{coll: c, state: state}
}
