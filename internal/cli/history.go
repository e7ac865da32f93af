package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/ir"
)

// HistoryEntry is one transition in a contract's lineage.
type HistoryEntry struct {
	Seq         int64             `json:"seq"`
	ID          string            `json:"id"`
	CommandID   string            `json:"command_id"`
	Timestamp   time.Time         `json:"timestamp"`
	ActingParty ir.Party          `json:"acting_party"`
	Kind        ir.TransitionKind `json:"kind"`
	Action      string            `json:"action"`
	Target      ir.ContractID     `json:"target,omitempty"`
	Consumed    []ir.ContractID   `json:"consumed"`
	Produced    []ir.ContractID   `json:"produced"`
	Result      ir.Record         `json:"result,omitempty"`
}

// HistoryResult is the history command's result.
type HistoryResult struct {
	Contract ir.ContractID  `json:"contract"`
	Status   ir.Status      `json:"status"`
	Entries  []HistoryEntry `json:"entries"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <contract-id>",
		Short: "Show the lineage of a contract",
		Long: `Show the transitions that led to a contract, oldest first.

The chain starts at the create that began the lineage, follows each
exercise whose target the contract succeeded, and ends with the
transition that archived the contract, if any. This is an operator view:
it is not filtered by party.

Example:
  ledgerd history '#6' --db ledger.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runHistory(opts *RootOptions, arg string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	id, err := parseContractID(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid contract id", err)
	}

	s, err := openSession(cmd.Context(), opts, requireJournal)
	if err != nil {
		return err
	}
	defer s.Close()

	l := s.engine.Ledger()
	chain, err := l.History(id)
	if err != nil {
		return queryError(out, err)
	}
	c, err := l.Get(id)
	if err != nil {
		return queryError(out, err)
	}

	result := HistoryResult{Contract: id, Status: c.Status}
	for _, t := range chain {
		result.Entries = append(result.Entries, historyEntry(t))
	}

	if out.JSON() {
		return out.Success(result)
	}

	out.Printf("History of %s (%s): %d transition(s)\n\n", id, c.Status, len(result.Entries))
	for _, e := range result.Entries {
		cyan.Fprintf(out.Writer, "seq %d", e.Seq)
		out.Printf(" %s %s by %s\n", e.Timestamp.Format(time.RFC3339), e.Action, e.ActingParty)
		if e.Target != 0 {
			out.Printf("  target:   %s\n", e.Target)
		}
		if len(e.Consumed) > 0 {
			out.Printf("  consumed: %v\n", e.Consumed)
		}
		if len(e.Produced) > 0 {
			out.Printf("  produced: %v\n", e.Produced)
		}
		if len(e.Result) > 0 {
			out.Printf("  result:   %s\n", formatRecord(e.Result))
		}
		if opts.Verbose {
			out.Printf("  id:       %s\n", e.ID)
			out.Printf("  command:  %s\n", e.CommandID)
		}
	}
	return nil
}

func historyEntry(t ir.Transition) HistoryEntry {
	action := t.Template + ".create"
	if t.Kind == ir.TransitionExercise {
		action = t.Template + "." + t.Choice
	}
	return HistoryEntry{
		Seq:         t.Seq,
		ID:          t.ID,
		CommandID:   t.CommandID,
		Timestamp:   t.Timestamp,
		ActingParty: t.ActingParty,
		Kind:        t.Kind,
		Action:      action,
		Target:      t.Target,
		Consumed:    t.Consumed,
		Produced:    t.ProducedIDs(),
		Result:      t.Result,
	}
}
