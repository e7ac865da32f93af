package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
)

// SubmitOptions holds flags shared by create and exercise.
type SubmitOptions struct {
	*RootOptions
	As        string
	Payload   string // create
	Args      string // exercise
	CommandID string
}

// OutcomeView is the printed form of an engine outcome.
type OutcomeView struct {
	Status       engine.Status   `json:"status"`
	Seq          int64           `json:"seq,omitempty"`
	TransitionID string          `json:"transition_id,omitempty"`
	CommandID    string          `json:"command_id,omitempty"`
	Produced     []ir.ContractID `json:"produced,omitempty"`
	Result       ir.Record       `json:"result,omitempty"`
	ErrorKind    ir.ErrorKind    `json:"error_kind,omitempty"`
	ErrorReason  ir.Reason       `json:"error_reason,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <template>",
		Short: "Create a contract",
		Long: `Submit a create command on behalf of a party.

The acting party must be a signatory of the new contract. Money fields
are decimal strings; JSON numbers must be integers.

Example:
  ledgerd create AllowanceAccount --db ledger.db --as parent \
    --payload '{"parent":"parent","child":"emma","childName":"Emma","balance":"20.00","weeklyAmount":"10.00","currency":"USD","lastPaymentDate":"2024-01-01"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseRecord("payload", opts.Payload)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid payload", err)
			}
			return submit(opts, cmd, engine.Submission{
				Kind:      engine.SubmitCreate,
				Template:  args[0],
				Arguments: payload,
			})
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "contract payload as JSON")
	addSubmitFlags(cmd, opts)

	return cmd
}

// NewExerciseCommand creates the exercise command.
func NewExerciseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exercise <contract-id> <choice>",
		Short: "Exercise a choice on a contract",
		Long: `Submit an exercise command on behalf of a party.

The target contract is consumed; the choice's transition function decides
what is produced. The acting party must be the choice's controller.

Example:
  ledgerd exercise '#3' WithdrawMoney --db ledger.db --as emma \
    --args '{"amount":"5.00","description":"comic book"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseContractID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid target", err)
			}
			choiceArgs, err := parseRecord("args", opts.Args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			return submit(opts, cmd, engine.Submission{
				Kind:       engine.SubmitExercise,
				ContractID: id,
				Choice:     args[1],
				Arguments:  choiceArgs,
			})
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "choice arguments as JSON")
	addSubmitFlags(cmd, opts)

	return cmd
}

func addSubmitFlags(cmd *cobra.Command, opts *SubmitOptions) {
	cmd.Flags().StringVar(&opts.As, "as", "", "acting party (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.CommandID, "command-id", "", "command id (default: generated UUIDv7)")
}

func submit(opts *SubmitOptions, cmd *cobra.Command, sub engine.Submission) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	s, err := openSession(ctx, opts.RootOptions, requireJournal)
	if err != nil {
		return err
	}
	defer s.Close()

	sub.ActingParty = ir.Party(opts.As)
	sub.CommandID = opts.CommandID
	outcome := s.engine.Submit(ctx, sub)
	view := newOutcomeView(outcome)

	if !outcome.Committed() {
		if err := printRejection(out, view); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("rejected: %s", view.ErrorMessage))
	}

	if out.JSON() {
		return out.Success(view)
	}
	out.Pass("committed seq %d (%s)", view.Seq, view.CommandID)
	if len(view.Produced) > 0 {
		out.Printf("  produced: %v\n", view.Produced)
	}
	if len(view.Result) > 0 {
		out.Printf("  result:   %s\n", formatRecord(view.Result))
	}
	return nil
}

func newOutcomeView(o engine.Outcome) OutcomeView {
	return OutcomeView{
		Status:       o.Status,
		Seq:          o.Seq,
		TransitionID: o.TransitionID,
		CommandID:    o.CommandID,
		Produced:     o.ProducedContractIDs,
		Result:       o.Result,
		ErrorKind:    o.ErrorKind,
		ErrorReason:  o.ErrorReason,
		ErrorMessage: o.ErrorMessage,
	}
}

func printRejection(out *OutputFormatter, view OutcomeView) error {
	code := string(view.ErrorKind)
	if view.ErrorReason != "" {
		code += "/" + string(view.ErrorReason)
	}
	if out.JSON() {
		return out.encode(CLIResponse{
			Status: "error",
			Data:   view,
			Error:  &CLIError{Code: code, Message: view.ErrorMessage},
		})
	}
	out.Fail("rejected %s: %s", code, view.ErrorMessage)
	return nil
}

// formatRecord renders a record as canonical JSON, falling back to Go
// formatting for values canonical JSON cannot carry.
func formatRecord(r ir.Record) string {
	data, err := ir.MarshalCanonical(r)
	if err != nil {
		return fmt.Sprintf("%v", r)
	}
	return string(data)
}
