package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/harness"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path,omitempty"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run scenario files against a fresh ledger",
		Long: `Run YAML scenarios against the real engine.

Each scenario gets its own in-memory journal, a deterministic clock and
sequential command ids. Steps submit creates and exercises; the journal
is replayed after the last step and the assertions checked against the
trace and the final active set. The argument is a scenario file or a
directory of them.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  ledgerd test ./scenarios
  ledgerd test ./scenarios/allowance_weekly.yaml --verbose
  ledgerd test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runTests(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "scenarios not found", err)
	}

	var runOpts []harness.Option
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(opts.Logger))
	}
	suite, err := harness.RunDir(cmd.Context(), path, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	result := testResult(suite)
	if out.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeScenario, Message: "one or more scenarios failed"}
		}
		if err := out.encode(resp); err != nil {
			return err
		}
	} else {
		for _, s := range result.Scenarios {
			if s.Pass {
				out.Pass("%s", s.Name)
				continue
			}
			name := s.Name
			if name == "" {
				name = s.Path
			}
			out.Fail("%s", name)
			for _, e := range s.Errors {
				out.Printf("    %s\n", e)
			}
		}
		out.Printf("\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, "one or more scenarios failed")
	}
	return nil
}

// testResult lists passing scenarios by name, then failures in file order.
func testResult(suite *harness.SuiteResult) TestResult {
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, suite.Total),
		Passed:    suite.Passed,
		Failed:    suite.Failed,
		Total:     suite.Total,
	}
	for _, name := range sortedKeys(suite.Results) {
		if suite.Results[name].Pass {
			result.Scenarios = append(result.Scenarios, ScenarioResult{Name: name, Pass: true})
		}
	}
	for _, f := range suite.Failures {
		result.Scenarios = append(result.Scenarios, ScenarioResult{
			Name:   f.Scenario,
			Path:   f.Path,
			Errors: f.Errors,
		})
	}
	return result
}
