package harness

import (
	"github.com/roach88/rxdoc/internal/ir"
)

// Trace event operations besides the step operations.
const (
	OpEmit     = "emit"
	OpComplete = "complete"
)

// TraceEvent is one entry of a run's trace.
type TraceEvent struct {
	Step     int      `json:"step"`
	Op       string   `json:"op"`
	ID       string   `json:"id,omitempty"`
	Observer string   `json:"observer,omitempty"`
	Rev      int64    `json:"rev,omitempty"`
	Hooks    []string `json:"hooks,omitempty"`
	Error    string   `json:"error,omitempty"`
	Value    ir.Value `json:"value,omitempty"`
	Missing  bool     `json:"missing,omitempty"`
	Deleted  bool     `json:"deleted,omitempty"`
}

// canonical converts the event to an ir.Object, omitting empty fields.
func (e TraceEvent) canonical() ir.Object {
	obj := ir.Object{
		"step": ir.Int(e.Step),
		"op":   ir.String(e.Op),
	}
	if e.ID != "" {
		obj["id"] = ir.String(e.ID)
	}
	if e.Observer != "" {
		obj["observer"] = ir.String(e.Observer)
	}
	if e.Rev != 0 {
		obj["rev"] = ir.Int(e.Rev)
	}
	if len(e.Hooks) > 0 {
		names := make(ir.Array, len(e.Hooks))
		for i, h := range e.Hooks {
			names[i] = ir.String(h)
		}
		obj["hooks"] = names
	}
	if e.Error != "" {
		obj["error"] = ir.String(e.Error)
	}
	if e.Value != nil {
		obj["value"] = e.Value
	}
	if e.Missing {
		obj["missing"] = ir.Bool(true)
	}
	if e.Deleted {
		obj["deleted"] = ir.Bool(true)
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// HookCalls counts invocations per hook name.
	HookCalls map[string]int `json:"hook_calls"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		HookCalls: make(map[string]int),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
