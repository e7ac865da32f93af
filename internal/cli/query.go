package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/query"
	"github.com/roach88/ledgerd/internal/queryir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	As     string
	Where  string // field=value[,field=value...]
	Filter string // CEL expression
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <template>",
		Short: "List active contracts visible to a party",
		Long: `List the active contracts of a template that a party is a stakeholder of.

--where narrows by payload field equality; nested fields use dots.
--filter takes a CEL expression over payload, id, template, signatories
and observers.

Examples:
  ledgerd query AllowanceAccount --db ledger.db --as parent
  ledgerd query CouponPayment --db ledger.db --as alice --where period=2
  ledgerd query Bond --db ledger.db --as acme --filter 'payload.currency == "USD" && payload.couponFrequency == 2'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "querying party (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.Where, "where", "", "field=value equalities, comma separated")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "CEL filter expression")

	return cmd
}

func runQuery(opts *QueryOptions, template string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := openSession(cmd.Context(), opts.RootOptions, requireJournal)
	if err != nil {
		return err
	}
	defer s.Close()

	tmpl, err := s.registry.Resolve(template)
	if err != nil {
		return queryError(out, err)
	}
	where, err := queryir.ParseFilter(opts.Where, tmpl.Spec.Fields)
	if err != nil {
		return queryError(out, err)
	}
	filter := where
	if opts.Filter != "" {
		filter = queryir.AllOf(where, queryir.Expr{Source: opts.Filter})
	}

	qs, err := query.New(s.registry, s.engine.Ledger(), query.WithLogger(s.logger))
	if err != nil {
		return err
	}
	contracts, err := qs.Collect(query.Request{
		Party:    ir.Party(opts.As),
		Template: template,
		Filter:   filter,
	})
	if err != nil {
		return queryError(out, err)
	}

	if out.JSON() {
		if contracts == nil {
			contracts = []ir.Contract{}
		}
		return out.Success(contracts)
	}

	if len(contracts) == 0 {
		out.Printf("No active %s contracts visible to %s.\n", template, opts.As)
		return nil
	}
	for _, c := range contracts {
		out.Printf("%s %s\n", c.ID, c.Template)
		out.Printf("  signatories: %s\n", joinParties(c.Signatories))
		if len(c.Observers) > 0 {
			out.Printf("  observers:   %s\n", joinParties(c.Observers))
		}
		out.Printf("  payload:     %s\n", formatRecord(c.Payload))
	}
	out.Printf("\n%d contract(s)\n", len(contracts))
	return nil
}

// queryError reports a rejected query with its ledger error kind.
func queryError(out *OutputFormatter, err error) error {
	code := string(ir.KindOf(err))
	if reason := ir.ReasonOf(err); reason != "" {
		code += "/" + string(reason)
	}
	if err := out.Error(code, err.Error(), nil); err != nil {
		return err
	}
	return WrapExitError(ExitFailure, "query rejected", err)
}

func joinParties(parties []ir.Party) string {
	names := make([]string, len(parties))
	for i, p := range parties {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
