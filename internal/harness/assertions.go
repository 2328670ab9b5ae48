package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rxdoc/internal/store"
)

// evaluateAssertions checks the final state of a run. It returns one
// message per failed assertion.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertHookCount:
			err = h.assertHookCount(a)
		case AssertFinalState:
			err = h.assertFinalState(ctx, a)
		case AssertHistoryLength:
			err = h.assertHistoryLength(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return failures
}

func (h *Harness) assertHookCount(a Assertion) error {
	if got := h.result.HookCalls[a.Hook]; got != a.Count {
		return fmt.Errorf("hook %s: expected %d calls, got %d", a.Hook, a.Count, got)
	}
	return nil
}

// assertFinalState reads the stored row directly, bypassing the collection's
// cached handles.
func (h *Harness) assertFinalState(ctx context.Context, a Assertion) error {
	doc, err := h.store.Collection(h.coll.Name()).Get(ctx, a.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("document %s not stored", a.ID)
	}
	if err != nil {
		return err
	}

	if doc.Deleted != a.Deleted {
		return fmt.Errorf("document %s: expected deleted=%t, got %t", a.ID, a.Deleted, doc.Deleted)
	}
	if a.Expect != nil {
		if msg := matchSubset(doc.Data, a.Expect); msg != "" {
			return fmt.Errorf("document %s: %s", a.ID, msg)
		}
	}
	return nil
}

func (h *Harness) assertHistoryLength(ctx context.Context, a Assertion) error {
	revs, err := h.store.Collection(h.coll.Name()).History(ctx, a.ID)
	if err != nil {
		return err
	}
	if len(revs) != a.Count {
		return fmt.Errorf("document %s: expected %d revisions, got %d", a.ID, a.Count, len(revs))
	}
	return nil
}
