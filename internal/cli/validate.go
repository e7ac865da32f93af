package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/compiler"
	"github.com/roach88/ledgerd/internal/templates"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Templates []string `json:"templates,omitempty"`
	Hash      string   `json:"hash,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <templates-dir>",
		Short: "Validate a directory of CUE templates",
		Long: `Compile and check a directory of CUE template declarations.

Reports every compile error, schema violation and broken cross-template
reference, then checks that each declared choice has an implementation.

Exit codes:
  0 - Catalogue is valid
  1 - Catalogue has errors
  2 - Command error (directory not found)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	info, err := os.Stat(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "templates directory not found", err)
	}
	if !info.IsDir() {
		return NewExitError(ExitCommandError, "not a directory: "+dir)
	}

	specs, err := compiler.LoadDir(dir)
	if err != nil {
		return outputValidationErrors(out, unjoin(err))
	}
	out.VerboseLog("Compiled %d template(s) from %s", len(specs), dir)

	reg, err := templates.NewRegistry(specs...)
	if err != nil {
		return outputValidationErrors(out, []string{err.Error()})
	}

	result := ValidationResult{Valid: true, Hash: reg.Hash()}
	for _, t := range reg.Templates() {
		result.Templates = append(result.Templates, t.Name())
	}

	if out.JSON() {
		return out.Success(result)
	}
	out.Pass("%d template(s) valid (catalogue %.12s)", len(result.Templates), result.Hash)
	return nil
}

func outputValidationErrors(out *OutputFormatter, errs []string) error {
	if out.JSON() {
		if err := out.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: ErrCodeInvalid, Message: "catalogue has errors"},
		}); err != nil {
			return err
		}
	} else {
		for _, e := range errs {
			out.Fail("%s", e)
		}
		out.Printf("\n%d error(s)\n", len(errs))
	}
	return NewExitError(ExitFailure, "validation failed")
}

// unjoin splits an errors.Join result into its messages.
func unjoin(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
