package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/mdstats/internal/ir"
)

// Snapshot captures the observable outcome of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	ScenarioName string
	Filter       ir.IRObject
	Summary      ir.IRObject
	ErrorClass   string
	Lookups      []LookupEvent
}

// newSnapshot builds the snapshot of result.
func newSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{
		ScenarioName: name,
		Filter:       result.Filter,
		ErrorClass:   result.ErrorClass,
		Lookups:      result.Lookups,
	}
	if result.Summary != nil {
		s.Summary = result.Summary.IRObject()
	}
	return s
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
// Error messages are left out; the class is what scenarios pin down.
func (s *Snapshot) toCanonicalMap() map[string]any {
	lookups := make([]any, len(s.Lookups))
	for i, l := range s.Lookups {
		lookups[i] = map[string]any{
			"collection": l.Collection,
			"filter":     l.Filter,
			"field":      l.Field,
			"values":     l.Values,
		}
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"lookups":       lookups,
	}
	if s.Filter != nil {
		result["filter"] = s.Filter
	}
	if s.Summary != nil {
		result["summary"] = s.Summary
	}
	if s.ErrorClass != "" {
		result["error"] = s.ErrorClass
	}
	return result
}

// RunWithGolden executes a scenario and compares the snapshot against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := newSnapshot(scenarioName, result)
	data, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	// Compare with golden file using goldie
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
