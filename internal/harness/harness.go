package harness

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/rxdoc/internal/collection"
	"github.com/roach88/rxdoc/internal/engine"
	"github.com/roach88/rxdoc/internal/hooks"
	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/reactive"
	"github.com/roach88/rxdoc/internal/schema"
	"github.com/roach88/rxdoc/internal/store"
	"github.com/roach88/rxdoc/internal/telemetry"
	"github.com/roach88/rxdoc/internal/testutil"
)

// Error kinds reported in traces and matched by expect clauses.
const (
	KindPreHook    = "pre_hook"
	KindValidation = "validation"
	KindConflict   = "conflict"
	KindPersist    = "persist"
	KindPostHook   = "post_hook"
	KindRemoved    = "removed"
	KindNotFound   = "not_found"
	KindOther      = "error"
)

var errNotFound = errors.New("document not found")

// Harness executes one scenario against a fresh store.
type Harness struct {
	store   *store.Store
	coll    *collection.Collection
	result  *Result
	handles map[string]*collection.Document

	observers map[string]*observer

	mu    sync.Mutex
	fired []firedHook
}

type firedHook struct {
	phase hooks.Phase
	mode  hooks.Mode
	name  string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh database in a temporary directory. Missing
// primary keys are filled as "doc-1", "doc-2", ... so runs are reproducible.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context for every write.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	name := scenario.Collection
	if name == "" {
		name = "scenario"
	}

	sch, err := schema.Compile(name, scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	dir, err := os.MkdirTemp("", "rxdoc-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store: st,
		coll: collection.New(name, sch, st.Collection(name),
			collection.WithIDGenerator(testutil.NewSequentialIDGenerator("doc")),
			collection.WithSequencer(testutil.NewDeterministicClock()),
			collection.WithLogger(telemetry.Nop()),
		),
		result:    NewResult(),
		handles:   make(map[string]*collection.Document),
		observers: make(map[string]*observer),
	}
	defer h.coll.Close()

	for _, spec := range scenario.Hooks {
		if err := h.register(spec); err != nil {
			return nil, fmt.Errorf("hook %s: %w", spec.Name, err)
		}
	}

	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i+1, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		h.drainObservers(i + 1)
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) register(spec HookSpec) error {
	op, err := hooks.ParseOperation(spec.Operation)
	if err != nil {
		return err
	}
	phase, err := hooks.ParsePhase(spec.Phase)
	if err != nil {
		return err
	}
	mode, err := hooks.ParseMode(spec.Mode)
	if err != nil {
		return err
	}

	var value ir.Value
	if spec.Action == HookSet {
		if value, err = ir.FromAny(spec.Value); err != nil {
			return fmt.Errorf("value: %w", err)
		}
	}
	message := spec.Message
	if message == "" {
		message = "hook " + spec.Name + " failed"
	}

	h.coll.RegisterHook(op, phase, mode, func(_ context.Context, subj *hooks.Subject) error {
		h.recordHook(firedHook{phase: phase, mode: mode, name: spec.Name})
		switch spec.Action {
		case HookSet:
			subj.Set(spec.Field, value)
		case HookUnset:
			subj.Delete(spec.Field)
		case HookFail:
			return errors.New(message)
		case HookPanic:
			panic(message)
		}
		return nil
	})
	return nil
}

func (h *Harness) recordHook(f firedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fired = append(h.fired, f)
	h.result.HookCalls[f.name]++
}

// takeFired returns the hooks fired since the last call: pre before post,
// series in run order before parallel sorted by name.
func (h *Harness) takeFired() []string {
	h.mu.Lock()
	fired := h.fired
	h.fired = nil
	h.mu.Unlock()

	slices.SortStableFunc(fired, func(a, b firedHook) int {
		if c := cmp.Compare(a.rank(), b.rank()); c != 0 {
			return c
		}
		if a.mode == hooks.ModeParallel {
			return strings.Compare(a.name, b.name)
		}
		return 0
	})

	names := make([]string, len(fired))
	for i, f := range fired {
		names[i] = f.name
	}
	return names
}

// rank orders pre series, pre parallel, post series, post parallel.
func (f firedHook) rank() int {
	r := 0
	if f.phase == hooks.PhasePost {
		r = 2
	}
	if f.mode == hooks.ModeParallel {
		r++
	}
	return r
}

func (h *Harness) runStep(ctx context.Context, n int, step Step) error {
	op, err := step.operation()
	if err != nil {
		return err
	}

	event := TraceEvent{Step: n, Op: op}
	var doc *collection.Document
	var opErr error

	switch op {
	case OpInsert:
		record, err := ir.ObjectFromAny(step.Insert)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		doc, opErr = h.coll.Insert(ctx, record)
		if doc != nil {
			h.handles[doc.ID()] = doc
		} else if id, ok := record[h.coll.Schema().PrimaryKey].(ir.String); ok {
			event.ID = string(id)
		}

	case OpSet, OpUnset:
		fs := step.Set
		if op == OpUnset {
			fs = step.Unset
		}
		doc, opErr = h.handle(ctx, fs.ID)
		event.ID = fs.ID
		if opErr == nil {
			if op == OpSet {
				var v ir.Value
				if v, err = ir.FromAny(fs.Value); err != nil {
					return fmt.Errorf("set value: %w", err)
				}
				opErr = doc.Set(fs.Field, v)
			} else {
				opErr = doc.Unset(fs.Field)
			}
		}

	case OpSave:
		doc, opErr = h.handle(ctx, step.Save)
		event.ID = step.Save
		if opErr == nil {
			opErr = doc.Save(ctx)
		}

	case OpRemove:
		doc, opErr = h.handle(ctx, step.Remove)
		event.ID = step.Remove
		if opErr == nil {
			opErr = doc.Remove(ctx)
		}

	case OpFind:
		event.ID = step.Find
		doc, opErr = h.coll.FindOne(ctx, step.Find)
		if opErr == nil && doc == nil {
			event.Missing = true
		}
		if doc != nil {
			h.handles[doc.ID()] = doc
			event.Value = doc.State().Data()
		}

	case OpObserve:
		event.ID = step.Observe.ID
		event.Observer = step.Observe.Name
		doc, opErr = h.handle(ctx, step.Observe.ID)
		if opErr == nil {
			h.observe(step.Observe, doc)
		}
	}

	if doc != nil {
		event.ID = doc.ID()
		event.Rev = generation(doc.Revision())
		event.Deleted = doc.Deleted()
	}
	event.Hooks = h.takeFired()
	event.Error = kindOf(opErr)
	h.result.addEvent(event)

	h.check(n, op, step.Expect, doc, event, opErr)
	return nil
}

// handle returns the last handle the run saw for id, else looks it up.
func (h *Harness) handle(ctx context.Context, id string) (*collection.Document, error) {
	if doc, ok := h.handles[id]; ok {
		return doc, nil
	}
	doc, err := h.coll.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNotFound
	}
	h.handles[id] = doc
	return doc, nil
}

func (h *Harness) check(n int, op string, expect *Expect, doc *collection.Document, event TraceEvent, opErr error) {
	prefix := fmt.Sprintf("steps[%d] %s %s", n-1, op, event.ID)

	want := ""
	if expect != nil {
		want = expect.Error
	}
	if event.Error != want {
		h.result.AddError(fmt.Sprintf("%s: expected error %q, got %q (%v)", prefix, want, event.Error, opErr))
		return
	}
	if expect == nil {
		return
	}

	if expect.Missing != event.Missing {
		h.result.AddError(fmt.Sprintf("%s: expected missing=%t", prefix, expect.Missing))
	}
	if expect.Rev != 0 && expect.Rev != event.Rev {
		h.result.AddError(fmt.Sprintf("%s: expected rev %d, got %d", prefix, expect.Rev, event.Rev))
	}
	if expect.Data != nil {
		if doc == nil {
			h.result.AddError(fmt.Sprintf("%s: expected data but no document", prefix))
			return
		}
		if msg := matchSubset(doc.Data(), expect.Data); msg != "" {
			h.result.AddError(fmt.Sprintf("%s: %s", prefix, msg))
		}
	}
}

// matchSubset reports the first field of want that got does not match.
func matchSubset(got ir.Object, want map[string]any) string {
	expected, err := ir.ObjectFromAny(want)
	if err != nil {
		return fmt.Sprintf("invalid expected data: %v", err)
	}
	for _, k := range expected.SortedKeys() {
		if !ir.Equal(got[k], expected[k]) {
			return fmt.Sprintf("field %q: expected %v, got %v", k, ir.ToAny(expected[k]), ir.ToAny(got[k]))
		}
	}
	return ""
}

func kindOf(err error) string {
	if err == nil {
		return ""
	}

	var we *engine.WriteError
	if errors.As(err, &we) {
		switch we.Code {
		case engine.ErrCodePreHook:
			return KindPreHook
		case engine.ErrCodeValidation:
			return KindValidation
		case engine.ErrCodeConflict:
			return KindConflict
		case engine.ErrCodePersist:
			return KindPersist
		case engine.ErrCodePostHook:
			return KindPostHook
		}
	}

	switch {
	case schema.IsValidationError(err):
		return KindValidation
	case errors.Is(err, collection.ErrDocumentRemoved):
		return KindRemoved
	case errors.Is(err, errNotFound):
		return KindNotFound
	}
	return KindOther
}

// generation returns the numeric prefix of a revision, 0 if there is none.
func generation(rev string) int64 {
	if rev == "" {
		return 0
	}
	gen, _, err := ir.ParseRevision(rev)
	if err != nil {
		return 0
	}
	return gen
}

type observer struct {
	name  string
	field *reactive.FieldSubscription
	doc   *reactive.DocumentSubscription
	done  bool
}

func (h *Harness) observe(spec *ObserveStep, doc *collection.Document) {
	o := &observer{name: spec.Name}
	if spec.Field != "" {
		o.field = doc.Observe(spec.Field)
	} else {
		o.doc = doc.ObserveDocument()
	}
	if prev, ok := h.observers[spec.Name]; ok {
		prev.cancel()
	}
	h.observers[spec.Name] = o
}

func (o *observer) cancel() {
	if o.field != nil {
		o.field.Cancel()
	} else {
		o.doc.Cancel()
	}
}

// drainObservers records everything each observer received during step n.
func (h *Harness) drainObservers(n int) {
	names := make([]string, 0, len(h.observers))
	for name := range h.observers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		o := h.observers[name]
		for !o.done {
			event, ok := o.poll()
			if !ok {
				break
			}
			event.Step = n
			event.Observer = name
			h.result.addEvent(event)
		}
	}
}

// poll takes one pending notification without blocking.
func (o *observer) poll() (TraceEvent, bool) {
	if o.field != nil {
		select {
		case v, ok := <-o.field.C():
			if !ok {
				o.done = true
				return TraceEvent{Op: OpComplete}, true
			}
			e := TraceEvent{Op: OpEmit, Rev: generation(v.Rev), Missing: !v.Present}
			if v.Present {
				e.Value = v.Value
			}
			return e, true
		default:
			return TraceEvent{}, false
		}
	}

	select {
	case snap, ok := <-o.doc.C():
		if !ok {
			o.done = true
			return TraceEvent{Op: OpComplete}, true
		}
		return TraceEvent{
			Op:      OpEmit,
			Rev:     generation(snap.Rev),
			Value:   snap.Data,
			Deleted: snap.Deleted,
		}, true
	default:
		return TraceEvent{}, false
	}
}
