package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
)

// ReplayResult holds the replay command's result.
type ReplayResult struct {
	Transitions   int            `json:"transitions"`
	LastSeq       int64          `json:"last_seq"`
	Active        int            `json:"active"`
	ByTemplate    map[string]int `json:"by_template"`
	Deterministic bool           `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the journal and verify it",
		Long: `Rebuild the ledger from the journal and verify it.

Every transition is checked as it is applied: seq continuity, at-most-once
consumption, contract id allocation and content address. The journal's
active set must then equal the replayed one. The journal is replayed a
second time and both replays must agree transition for transition.

Exit codes:
  0 - Journal verified
  1 - Verification failed (corrupt journal, non-deterministic replay)
  2 - Command error (journal not found, catalogue mismatch, etc.)

Examples:
  ledgerd replay --db ./ledger.db
  ledgerd replay --db ./ledger.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	s, err := openSession(ctx, opts, requireJournal)
	if err != nil {
		if GetExitCode(err) == ExitFailure {
			if outErr := out.Error(ErrCodeDeterminism, err.Error(), nil); outErr != nil {
				return outErr
			}
		}
		return err
	}
	defer s.Close()

	first := s.engine.Ledger()
	second, _, err := s.store.Replay(ctx, ledger.WithLogger(s.logger), ledger.WithKeys(s.engine.Registry().Key))
	if err != nil {
		return WrapExitError(ExitFailure, "second replay failed", err)
	}

	result := ReplayResult{
		Transitions:   s.replay.Transitions,
		LastSeq:       s.replay.LastSeq,
		Active:        s.replay.Active,
		ByTemplate:    make(map[string]int),
		Deterministic: sameLog(first.Log(), second.Log()),
	}
	for _, c := range first.Snapshot().All() {
		result.ByTemplate[c.Template]++
	}

	if out.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Deterministic {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeDeterminism, Message: "determinism verification failed"}
		}
		if err := out.encode(resp); err != nil {
			return err
		}
	} else {
		out.Printf("Replay Summary: %d transition(s), last seq %d\n\n", result.Transitions, result.LastSeq)
		out.Printf("Active contracts: %d\n", result.Active)
		for _, tmpl := range sortedKeys(result.ByTemplate) {
			out.Printf("  %-20s %d\n", tmpl, result.ByTemplate[tmpl])
		}
		out.Printf("\n")
		if result.Deterministic {
			out.Pass("Journal verified deterministic")
		} else {
			out.Fail("Determinism verification failed")
		}
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func sameLog(a, b []ir.Transition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Seq != b[i].Seq {
			return false
		}
	}
	return true
}
