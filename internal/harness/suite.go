package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ScenarioDirNotFoundError is returned when a suite directory doesn't exist.
type ScenarioDirNotFoundError struct {
	Dir string
}

// Error implements the error interface.
func (e *ScenarioDirNotFoundError) Error() string {
	return fmt.Sprintf("scenario directory %q does not exist", e.Dir)
}

// SuiteResult contains results from running every scenario in a directory.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// ScenarioPaths returns the *.yaml and *.yml files of dir, sorted.
func ScenarioPaths(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, &ScenarioDirNotFoundError{Dir: dir}
	}

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in dir.
//
// For each scenario file:
// 1. Load the scenario
// 2. Run it via harness.Run
// 3. Collect and report results
//
// A scenario that fails to load or run counts as failed; RunSuite itself
// only fails when dir cannot be listed.
func RunSuite(ctx context.Context, dir string) (*SuiteResult, error) {
	paths, err := ScenarioPaths(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(ctx, scenario)
		if err != nil {
			result.fail(path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		// Check if scenario passed
		if !runResult.Pass {
			result.fail(path, fmt.Sprintf("scenario checks failed: %v", runResult.Errors))
			continue
		}

		result.Passed++
	}

	return result, nil
}

func (r *SuiteResult) fail(path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{ScenarioPath: path, Error: msg})
}
