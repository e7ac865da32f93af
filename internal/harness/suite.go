package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int                `json:"total"`
	Passed   int                `json:"passed"`
	Failed   int                `json:"failed"`
	Results  map[string]*Result `json:"-"`
	Failures []ScenarioFailure  `json:"failures,omitempty"`
}

// ScenarioFailure is a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Path     string   `json:"path"`
	Scenario string   `json:"scenario,omitempty"`
	Errors   []string `json:"errors"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// FindScenarios returns the .yaml and .yml files directly under dir,
// sorted by name. A path naming a single file is returned as is.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return files, nil
}

// RunDir loads and runs every scenario FindScenarios returns for path.
// A scenario that fails to load counts as failed; the rest still run.
func RunDir(ctx context.Context, path string, opts ...Option) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, fmt.Errorf("find scenarios: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("find scenarios: no scenario files in %s", path)
	}

	suite := &SuiteResult{Results: make(map[string]*Result)}
	for _, file := range files {
		suite.Total++

		scenario, err := LoadScenario(file)
		if err != nil {
			suite.fail(file, "", err.Error())
			continue
		}

		result, err := Run(ctx, scenario, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			suite.fail(file, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		suite.Results[scenario.Name] = result

		if !result.Pass {
			suite.fail(file, scenario.Name, result.Errors...)
			continue
		}
		suite.Passed++
	}

	return suite, nil
}

func (r *SuiteResult) fail(path, name string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{
		Path:     path,
		Scenario: name,
		Errors:   errs,
	})
}
