package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/ir"
)

// TemplatesOptions holds flags for the templates command.
type TemplatesOptions struct {
	*RootOptions
	Output string // write the compiled catalogue as JSON
}

// CatalogueSummary is the templates command's result.
type CatalogueSummary struct {
	Hash      string            `json:"hash"`
	Templates []ir.TemplateSpec `json:"templates"`
}

// NewTemplatesCommand creates the templates command.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TemplatesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the loaded template catalogue",
		Long: `List every template in the catalogue with its parties, fields and choices.

The catalogue is the embedded allowance and bond templates unless
catalogue.dir or --catalogue names a directory of CUE files.

Examples:
  ledgerd templates
  ledgerd templates --catalogue ./templates -o catalogue.json
  ledgerd templates --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplates(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled catalogue to a JSON file")

	return cmd
}

func runTemplates(opts *TemplatesOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, err := loadRegistry(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load templates", err)
	}

	summary := CatalogueSummary{Hash: reg.Hash()}
	for _, t := range reg.Templates() {
		summary.Templates = append(summary.Templates, t.Spec)
	}

	if opts.Output != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		out.VerboseLog("Wrote %d template(s) to %s", len(summary.Templates), opts.Output)
	}

	if out.JSON() {
		return out.Success(summary)
	}

	out.Printf("Catalogue %.12s: %d template(s)\n", summary.Hash, len(summary.Templates))
	for _, spec := range summary.Templates {
		out.Printf("\n")
		cyan.Fprintln(out.Writer, spec.Name)
		if spec.Description != "" {
			out.Printf("  %s\n", spec.Description)
		}
		out.Printf("  signatories: %s\n", strings.Join(spec.Signatories, ", "))
		if len(spec.Observers) > 0 {
			out.Printf("  observers:   %s\n", strings.Join(spec.Observers, ", "))
		}
		out.Printf("  fields:      %s\n", formatFields(spec.Fields))
		for _, c := range spec.Choices {
			mode := ""
			if c.NonConsuming {
				mode = ", nonconsuming"
			}
			out.Printf("  choice %s (controller %s%s)", c.Name, c.Controller, mode)
			if len(c.Args) > 0 {
				out.Printf(": %s", formatFields(c.Args))
			}
			out.Printf("\n")
			for _, arg := range sortedKeys(c.Consumes) {
				ref := c.Consumes[arg]
				out.Printf("    consumes %s: %s (controller %s)\n", arg, ref.Template, ref.Controller)
			}
		}
	}
	return nil
}

func formatFields(fields []ir.FieldSpec) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f.Type == ir.TypeRecord {
			parts[i] = fmt.Sprintf("%s {%s}", f.Name, formatFields(f.Fields))
			continue
		}
		parts[i] = fmt.Sprintf("%s %s", f.Name, f.Type)
	}
	return strings.Join(parts, ", ")
}
