package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rxdoc/internal/hooks"
)

// Scenario defines a write scenario: a schema, the hooks to register and
// the steps to run against a fresh collection.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Collection names the collection. Defaults to "scenario".
	Collection string `yaml:"collection,omitempty"`

	// Schema is inline CUE source declaring #Document.
	Schema string `yaml:"schema"`

	// Hooks are registered in order before the first step.
	Hooks []HookSpec `yaml:"hooks,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// HookSpec describes a hook the harness builds and registers.
type HookSpec struct {
	Name      string `yaml:"name"`
	Operation string `yaml:"operation"`
	Phase     string `yaml:"phase"`
	Mode      string `yaml:"mode,omitempty"`

	// Action is one of the Hook* constants.
	Action string `yaml:"action"`

	// Field and Value parameterize set and unset.
	Field string `yaml:"field,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Message is the error text of a fail hook.
	Message string `yaml:"message,omitempty"`
}

// Hook actions.
const (
	HookSet   = "set"
	HookUnset = "unset"
	HookFail  = "fail"
	HookPanic = "panic"
	HookNoop  = "noop"
)

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	Insert  map[string]any `yaml:"insert,omitempty"`
	Set     *FieldStep     `yaml:"set,omitempty"`
	Unset   *FieldStep     `yaml:"unset,omitempty"`
	Save    string         `yaml:"save,omitempty"`
	Remove  string         `yaml:"remove,omitempty"`
	Find    string         `yaml:"find,omitempty"`
	Observe *ObserveStep   `yaml:"observe,omitempty"`

	// Expect checks the step outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// FieldStep edits one field of a document's draft.
type FieldStep struct {
	ID    string `yaml:"id"`
	Field string `yaml:"field"`
	Value any    `yaml:"value,omitempty"`
}

// ObserveStep subscribes to a document, or to one field when Field is set.
type ObserveStep struct {
	Name  string `yaml:"name"`
	ID    string `yaml:"id"`
	Field string `yaml:"field,omitempty"`
}

// Expect describes the expected outcome of a step.
type Expect struct {
	// Error is the expected error kind; empty means success.
	Error string `yaml:"error,omitempty"`

	// Rev is the expected revision generation of the affected document.
	Rev int64 `yaml:"rev,omitempty"`

	// Data is a subset match against the document's data.
	Data map[string]any `yaml:"data,omitempty"`

	// Missing expects find to return no document.
	Missing bool `yaml:"missing,omitempty"`
}

// Assertion validates the final state of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Hook names the hook counted by hook_count.
	Hook string `yaml:"hook,omitempty"`

	// ID names the document checked by final_state and history_length.
	ID string `yaml:"id,omitempty"`

	// Expect is a subset match used by final_state.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Deleted is the expected tombstone flag used by final_state.
	Deleted bool `yaml:"deleted,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertHookCount     = "hook_count"
	AssertFinalState    = "final_state"
	AssertHistoryLength = "history_length"
)

// Step operations, as they appear in the trace.
const (
	OpInsert  = "insert"
	OpSet     = "set"
	OpUnset   = "unset"
	OpSave    = "save"
	OpRemove  = "remove"
	OpFind    = "find"
	OpObserve = "observe"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool)
	for i, h := range s.Hooks {
		if err := validateHook(h); err != nil {
			return fmt.Errorf("hooks[%d]: %w", i, err)
		}
		if names[h.Name] {
			return fmt.Errorf("hooks[%d]: duplicate name %q", i, h.Name)
		}
		names[h.Name] = true
	}

	for i, step := range s.Steps {
		if _, err := step.operation(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateHook(h HookSpec) error {
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := hooks.ParseOperation(h.Operation); err != nil {
		return err
	}
	if _, err := hooks.ParsePhase(h.Phase); err != nil {
		return err
	}
	if _, err := hooks.ParseMode(h.Mode); err != nil {
		return err
	}

	switch h.Action {
	case HookSet:
		if h.Field == "" {
			return fmt.Errorf("field is required for set")
		}
	case HookUnset:
		if h.Field == "" {
			return fmt.Errorf("field is required for unset")
		}
	case HookFail, HookPanic, HookNoop:
	default:
		return fmt.Errorf("unknown action %q", h.Action)
	}
	return nil
}

// operation returns the step's operation name, checking exactly one is set.
func (s Step) operation() (string, error) {
	var ops []string
	if s.Insert != nil {
		ops = append(ops, OpInsert)
	}
	if s.Set != nil {
		ops = append(ops, OpSet)
	}
	if s.Unset != nil {
		ops = append(ops, OpUnset)
	}
	if s.Save != "" {
		ops = append(ops, OpSave)
	}
	if s.Remove != "" {
		ops = append(ops, OpRemove)
	}
	if s.Find != "" {
		ops = append(ops, OpFind)
	}
	if s.Observe != nil {
		ops = append(ops, OpObserve)
	}

	switch len(ops) {
	case 1:
	case 0:
		return "", fmt.Errorf("no operation")
	default:
		return "", fmt.Errorf("more than one operation: %v", ops)
	}

	switch {
	case s.Set != nil && (s.Set.ID == "" || s.Set.Field == ""):
		return "", fmt.Errorf("set: id and field are required")
	case s.Unset != nil && (s.Unset.ID == "" || s.Unset.Field == ""):
		return "", fmt.Errorf("unset: id and field are required")
	case s.Observe != nil && (s.Observe.Name == "" || s.Observe.ID == ""):
		return "", fmt.Errorf("observe: name and id are required")
	}
	return ops[0], nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertHookCount:
		if a.Hook == "" {
			return fmt.Errorf("hook is required for hook_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for hook_count")
		}
	case AssertFinalState:
		if a.ID == "" {
			return fmt.Errorf("id is required for final_state")
		}
	case AssertHistoryLength:
		if a.ID == "" {
			return fmt.Errorf("id is required for history_length")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
