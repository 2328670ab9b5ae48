package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rxdoc/internal/ir"
)

// TraceSnapshot is the golden form of a run: the scenario name and its trace.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// canonical converts the snapshot to an ir.Object for canonical JSON.
func (s TraceSnapshot) canonical() ir.Object {
	trace := make(ir.Array, len(s.Trace))
	for i, e := range s.Trace {
		trace[i] = e.canonical()
	}
	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
	}
}

// MarshalTrace renders a trace as canonical JSON.
func MarshalTrace(scenarioName string, trace []TraceEvent) ([]byte, error) {
	return ir.MarshalCanonical(TraceSnapshot{ScenarioName: scenarioName, Trace: trace}.canonical())
}

// RunWithGolden runs a scenario, fails t if any expectation did not hold and
// compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's trace against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
