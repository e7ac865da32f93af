package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides journal.path
	Catalogue  string // overrides catalogue.dir

	// Set by PersistentPreRunE.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ledgerd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerd",
		Short: "ledgerd - multi-party contract ledger",
		Long: `A ledger of template-typed contracts between parties.

Contracts are created and consumed by atomic transitions, each authorized
against the template's signatories and choice controllers and journaled
to SQLite before it becomes visible.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to ledgerd.yml")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides journal.path)")
	cmd.PersistentFlags().StringVar(&opts.Catalogue, "catalogue", "", "directory of CUE templates (overrides catalogue.dir)")

	cmd.AddCommand(NewTemplatesCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewExerciseCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewStressCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// resolve loads the config file, applies flag overrides and builds the
// logger. Logs go to stderr so JSON output stays parseable.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	if o.Database != "" {
		cfg.Journal.Path = o.Database
	}
	if o.Catalogue != "" {
		cfg.Catalogue.Dir = o.Catalogue
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}

	o.Config = cfg
	o.Logger = cfg.Logger(cmd.ErrOrStderr())
	return nil
}
