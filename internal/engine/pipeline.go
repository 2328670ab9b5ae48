package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rxdoc/internal/hooks"
	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/reactive"
	"github.com/roach88/rxdoc/internal/schema"
	"github.com/roach88/rxdoc/internal/telemetry"
)

// Validator checks a record against the schema registered under schemaID.
// A schema violation is reported as a *schema.ValidationError.
type Validator interface {
	Validate(ctx context.Context, schemaID string, record ir.Object) error
}

// Adapter durably persists documents. Implemented by *store.Collection.
// Conflicts are reported as *store.ConflictError; any other error is an IO
// failure. Either way the write had no effect.
type Adapter interface {
	PersistInsert(ctx context.Context, id string, record ir.Object) (ir.StoredDocument, error)
	PersistUpdate(ctx context.Context, id string, record ir.Object, expectedRev string) (ir.StoredDocument, error)
	PersistRemove(ctx context.Context, id string, expectedRev string) (ir.StoredDocument, error)
}

// Target is a document handle the pipeline commits into.
type Target interface {
	hooks.DocumentView
	State() *reactive.State
}

// Resolver returns the handle for a freshly inserted document.
type Resolver func(doc ir.StoredDocument) Target

// Result is the outcome of a committed write.
type Result struct {
	Document ir.StoredDocument
	Target   Target
}

// Pipeline runs writes for one collection.
//
// Thread-safety: a Pipeline is safe for concurrent use. Concurrent writes to
// the same document are serialized by the adapter's revision check.
type Pipeline struct {
	collection string
	schemaID   string
	primaryKey string

	registry  *hooks.Registry
	validator Validator
	adapter   Adapter
	resolve   Resolver

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	clock   Sequencer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger. Default: telemetry.Nop().
func WithLogger(l *telemetry.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithMetrics sets the metrics sink. Default: disabled.
func WithMetrics(m *telemetry.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithSequencer sets the attempt counter. Default: NewClock().
func WithSequencer(s Sequencer) PipelineOption {
	return func(p *Pipeline) {
		p.clock = s
	}
}

// WithResolver sets how inserted documents get their handle.
// Default: a standalone handle over a new reactive.State.
func WithResolver(r Resolver) PipelineOption {
	return func(p *Pipeline) {
		p.resolve = r
	}
}

// NewPipeline creates a pipeline. The registry is read at every run, so hooks
// registered later apply to later writes.
func NewPipeline(
	collection string,
	schemaID string,
	primaryKey string,
	registry *hooks.Registry,
	validator Validator,
	adapter Adapter,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		collection: collection,
		schemaID:   schemaID,
		primaryKey: primaryKey,
		registry:   registry,
		validator:  validator,
		adapter:    adapter,
		resolve:    standaloneTarget,
		log:        telemetry.Nop(),
		metrics:    telemetry.NewMetrics(telemetry.MetricsConfig{}),
		clock:      NewClock(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.log = p.log.NewComponentLogger("engine").WithCollection(collection)
	return p
}

// attempt carries the state of one pipeline run.
type attempt struct {
	op      hooks.Operation
	id      string
	started time.Time
	base    *telemetry.Logger
	log     *telemetry.Logger
}

func (p *Pipeline) begin(op hooks.Operation, id string) *attempt {
	a := &attempt{
		op:      op,
		started: time.Now(),
		base: p.log.WithFields(map[string]any{
			"op":      string(op),
			"attempt": p.clock.Next(),
		}),
	}
	a.setID(id)
	return a
}

// setID records the document the attempt writes and tags its log entries.
func (a *attempt) setID(id string) {
	a.id = id
	a.log = a.base
	if id != "" {
		a.log = a.base.WithDocument(id)
	}
}

// Insert runs the insert pipeline over a private copy of record.
//
// Pre hooks receive the raw record. The primary key is read after the pre
// hooks ran, so a hook may set it.
func (p *Pipeline) Insert(ctx context.Context, record ir.Object) (Result, error) {
	a := p.begin(hooks.OpInsert, primaryKeyOf(record, p.primaryKey))

	subj := &hooks.Subject{
		Kind:       hooks.SubjectRawRecord,
		Operation:  hooks.OpInsert,
		Phase:      hooks.PhasePre,
		Collection: p.collection,
		ID:         a.id,
		Record:     record.Clone(),
	}
	if err := p.runPhase(ctx, a, subj); err != nil {
		return Result{}, p.abort(a, ErrCodePreHook, err)
	}

	working := subj.Snapshot()
	if err := p.validate(ctx, working); err != nil {
		return Result{}, p.abort(a, ErrCodeValidation, err)
	}

	id := primaryKeyOf(working, p.primaryKey)
	if id == "" {
		return Result{}, p.abort(a, ErrCodeValidation, p.primaryKeyError("must be a non-empty string"))
	}
	if id != a.id {
		a.setID(id)
	}

	doc, err := p.adapter.PersistInsert(ctx, a.id, working)
	if err != nil {
		return Result{}, p.abort(a, persistCode(err), fmt.Errorf("persist insert: %w", err))
	}

	target := p.resolve(doc)
	target.State().Commit(doc.Rev, doc.Data)
	return p.finish(ctx, a, doc, target)
}

// Save runs the save pipeline for target with draft as the proposed record.
//
// Pre hooks receive a private copy of draft. On any failure before commit
// the target's committed state is untouched.
func (p *Pipeline) Save(ctx context.Context, target Target, draft ir.Object) (Result, error) {
	a := p.begin(hooks.OpSave, target.ID())
	expectedRev := target.Revision()

	subj := &hooks.Subject{
		Kind:       hooks.SubjectDraft,
		Operation:  hooks.OpSave,
		Phase:      hooks.PhasePre,
		Collection: p.collection,
		ID:         a.id,
		Revision:   expectedRev,
		Record:     draft.Clone(),
		Document:   target,
	}
	if err := p.runPhase(ctx, a, subj); err != nil {
		return Result{}, p.abort(a, ErrCodePreHook, err)
	}

	working := subj.Snapshot()
	if got := primaryKeyOf(working, p.primaryKey); got != a.id {
		return Result{}, p.abort(a, ErrCodeValidation,
			p.primaryKeyError(fmt.Sprintf("%v: %q -> %q", ErrPrimaryKeyChanged, a.id, got)))
	}
	if err := p.validate(ctx, working); err != nil {
		return Result{}, p.abort(a, ErrCodeValidation, err)
	}

	doc, err := p.adapter.PersistUpdate(ctx, a.id, working, expectedRev)
	if err != nil {
		return Result{}, p.abort(a, persistCode(err), fmt.Errorf("persist update: %w", err))
	}

	target.State().Commit(doc.Rev, doc.Data)
	return p.finish(ctx, a, doc, target)
}

// Remove runs the remove pipeline for target. There is no validation step.
// Pre hooks receive a copy of the committed record; their mutations are
// discarded since a removal stores no new data.
func (p *Pipeline) Remove(ctx context.Context, target Target) (Result, error) {
	a := p.begin(hooks.OpRemove, target.ID())
	expectedRev := target.Revision()

	subj := &hooks.Subject{
		Kind:       hooks.SubjectDraft,
		Operation:  hooks.OpRemove,
		Phase:      hooks.PhasePre,
		Collection: p.collection,
		ID:         a.id,
		Revision:   expectedRev,
		Record:     target.State().Data(),
		Document:   target,
	}
	if err := p.runPhase(ctx, a, subj); err != nil {
		return Result{}, p.abort(a, ErrCodePreHook, err)
	}

	doc, err := p.adapter.PersistRemove(ctx, a.id, expectedRev)
	if err != nil {
		return Result{}, p.abort(a, persistCode(err), fmt.Errorf("persist remove: %w", err))
	}

	target.State().MarkDeleted(doc.Rev)
	return p.finish(ctx, a, doc, target)
}

// finish runs the post phase of a committed write.
func (p *Pipeline) finish(ctx context.Context, a *attempt, doc ir.StoredDocument, target Target) (Result, error) {
	a.log.Debugf("committed rev %s", doc.Rev)
	result := Result{Document: doc, Target: target}

	subj := &hooks.Subject{
		Kind:       hooks.SubjectCommitted,
		Operation:  a.op,
		Phase:      hooks.PhasePost,
		Collection: p.collection,
		ID:         doc.ID,
		Revision:   doc.Rev,
		Deleted:    doc.Deleted,
		Record:     doc.Data.Clone(),
		Document:   target,
	}
	if err := p.runPhase(ctx, a, subj); err != nil {
		committed := doc.Clone()
		a.log.WithError(err).Error("post hooks failed; write stays committed")
		p.metrics.RecordOperation(p.collection, string(a.op), telemetry.OutcomePostHookFailure, time.Since(a.started))
		return result, &WriteError{
			Code:       ErrCodePostHook,
			Operation:  a.op,
			Collection: p.collection,
			DocID:      doc.ID,
			Document:   &committed,
			Err:        err,
		}
	}

	p.metrics.RecordOperation(p.collection, string(a.op), telemetry.OutcomeCommitted, time.Since(a.started))
	return result, nil
}

func (p *Pipeline) abort(a *attempt, code WriteErrorCode, err error) error {
	a.log.WithError(err).WithField("code", string(code)).Warn("write aborted")
	p.metrics.RecordOperation(p.collection, string(a.op), outcomeFor(code), time.Since(a.started))
	return &WriteError{
		Code:       code,
		Operation:  a.op,
		Collection: p.collection,
		DocID:      a.id,
		Err:        err,
	}
}

func (p *Pipeline) validate(ctx context.Context, record ir.Object) error {
	if err := p.validator.Validate(ctx, p.schemaID, record); err != nil {
		if schema.IsValidationError(err) {
			return err
		}
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

func (p *Pipeline) primaryKeyError(msg string) error {
	return &schema.ValidationError{
		SchemaID: p.schemaID,
		Errors:   []schema.FieldError{{Path: p.primaryKey, Message: msg}},
	}
}

// runPhase runs the bucket for (subj.Operation, subj.Phase): the series list
// in order, then the parallel list as one joined group. The first failure
// stops the series; parallel siblings of a failing hook still run to
// completion before the error is returned.
func (p *Pipeline) runPhase(ctx context.Context, a *attempt, subj *hooks.Subject) error {
	bucket := p.registry.Lookup(subj.Operation, subj.Phase)
	if bucket.Empty() {
		return nil
	}
	a.log.Debugf("%s hooks: %d series, %d parallel", subj.Phase, len(bucket.Series), len(bucket.Parallel))

	for i, h := range bucket.Series {
		if h == nil {
			continue
		}
		if err := p.call(ctx, h, subj, hooks.ModeSeries, i); err != nil {
			return err
		}
	}

	if len(bucket.Parallel) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range bucket.Parallel {
		if h == nil {
			continue
		}
		g.Go(func() error {
			return p.call(gctx, h, subj, hooks.ModeParallel, i)
		})
	}
	return g.Wait()
}

// call invokes one hook, converting a panic into a HookError.
func (p *Pipeline) call(ctx context.Context, h hooks.Hook, subj *hooks.Subject, mode hooks.Mode, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{
				Operation: subj.Operation,
				Phase:     subj.Phase,
				Mode:      mode,
				Index:     index,
				Panicked:  true,
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
		p.metrics.RecordHook(string(subj.Operation), string(subj.Phase), string(mode), err != nil)
	}()

	if hookErr := h(ctx, subj); hookErr != nil {
		return &HookError{
			Operation: subj.Operation,
			Phase:     subj.Phase,
			Mode:      mode,
			Index:     index,
			Err:       hookErr,
		}
	}
	return nil
}

func persistCode(err error) WriteErrorCode {
	if IsConflictError(err) {
		return ErrCodeConflict
	}
	return ErrCodePersist
}

func outcomeFor(code WriteErrorCode) string {
	switch code {
	case ErrCodeValidation:
		return telemetry.OutcomeInvalid
	case ErrCodeConflict:
		return telemetry.OutcomeConflict
	case ErrCodePersist:
		return telemetry.OutcomePersistFailed
	default:
		return telemetry.OutcomeAborted
	}
}

func primaryKeyOf(record ir.Object, field string) string {
	if s, ok := record[field].(ir.String); ok {
		return string(s)
	}
	return ""
}

// stateTarget is the handle used when no Resolver is configured.
type stateTarget struct {
	state *reactive.State
}

func (t stateTarget) ID() string { return t.state.ID() }
func (t stateTarget) Revision() string { return t.state.Revision() }
func (t stateTarget) Deleted() bool { return t.state.Deleted() }
func (t stateTarget) Committed(field string) (ir.Value, bool) { return t.state.Committed(field) }
func (t stateTarget) State() *reactive.State { return t.state }

func standaloneTarget(doc ir.StoredDocument) Target {
	return stateTarget{state: reactive.New(doc.ID)}
}

// NewTarget wraps a reactive state as a pipeline target.
func NewTarget(s *reactive.State) Target {
	return stateTarget{state: s}
}
