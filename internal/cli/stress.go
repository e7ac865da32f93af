package cli

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/templates"
)

// maxAttempts bounds how often one withdrawal chases a moving account.
const maxAttempts = 1000

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	Accounts    int
	Workers     int
	Withdrawals int
	Amount      string
	Balance     string
}

// StressResult holds the stress command's result.
type StressResult struct {
	Accounts     int               `json:"accounts"`
	Submitted    int64             `json:"submitted"`
	Committed    int64             `json:"committed"`
	Insufficient int64             `json:"insufficient"`
	Retries      int64             `json:"retries"`
	Duration     string            `json:"duration"`
	Balances     map[string]string `json:"balances"`
	Consistent   bool              `json:"consistent"`
	Problems     []string          `json:"problems,omitempty"`
}

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Race concurrent withdrawals and check the balance invariant",
		Long: `Open allowance accounts and withdraw from them concurrently.

Workers race to exercise WithdrawMoney on the same accounts. A worker that
loses the race sees Conflict or NotActive and retries against the
account's successor. Afterwards every account's balance must equal its
opening balance less the committed withdrawals and never be negative.

Runs against an in-memory journal unless journal.path or --db is set.

Examples:
  ledgerd stress
  ledgerd stress --accounts 2 --workers 16 --withdrawals 500 --amount 0.25`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Accounts, "accounts", 4, "number of accounts")
	cmd.Flags().IntVar(&opts.Workers, "workers", 8, "concurrent submitters")
	cmd.Flags().IntVar(&opts.Withdrawals, "withdrawals", 100, "withdrawals per account")
	cmd.Flags().StringVar(&opts.Amount, "amount", "1.00", "amount of each withdrawal")
	cmd.Flags().StringVar(&opts.Balance, "balance", "50.00", "opening balance of each account")

	return cmd
}

// stressAccount tracks the live contract id of one account lineage.
type stressAccount struct {
	child     ir.Party
	mu        sync.Mutex
	id        ir.ContractID
	committed atomic.Int64
}

func (a *stressAccount) current() ir.ContractID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

// advance moves to the successor if from is still current.
func (a *stressAccount) advance(from, to ir.ContractID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id == from {
		a.id = to
	}
}

type stressCounters struct {
	submitted    atomic.Int64
	committed    atomic.Int64
	insufficient atomic.Int64
	retries      atomic.Int64
}

func runStress(opts *StressOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	if opts.Accounts <= 0 || opts.Workers <= 0 || opts.Withdrawals < 0 {
		return NewExitError(ExitCommandError, "--accounts and --workers must be positive, --withdrawals non-negative")
	}
	amount, err := ir.ParseMoney(opts.Amount)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --amount", err)
	}
	opening, err := ir.ParseMoney(opts.Balance)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --balance", err)
	}

	s, err := openSession(ctx, opts.RootOptions, allowMemory)
	if err != nil {
		return err
	}
	defer s.Close()
	eng := s.engine

	accounts := make([]*stressAccount, opts.Accounts)
	for i := range accounts {
		child := ir.Party(fmt.Sprintf("child-%d", i+1))
		acct := templates.AllowanceAccount{
			Parent:          "parent",
			Child:           child,
			ChildName:       string(child),
			Balance:         opening,
			WeeklyAmount:    ir.MustMoney("0.00"),
			Currency:        "USD",
			LastPaymentDate: ir.DateOf(time.Now()),
		}
		res, err := eng.Create(ctx, "parent", templates.AllowanceAccountTemplate, acct.Record())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open account", err)
		}
		accounts[i] = &stressAccount{child: child, id: res.Produced[0]}
	}
	out.VerboseLog("Opened %d account(s) with %s each", len(accounts), opening)

	var counters stressCounters
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < opts.Accounts*opts.Withdrawals; i++ {
		acct := accounts[i%len(accounts)]
		g.Go(func() error {
			return stressWithdraw(gctx, eng, acct, amount, &counters)
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "stress run aborted", err)
	}

	result := StressResult{
		Accounts:     len(accounts),
		Submitted:    counters.submitted.Load(),
		Committed:    counters.committed.Load(),
		Insufficient: counters.insufficient.Load(),
		Retries:      counters.retries.Load(),
		Duration:     time.Since(start).Round(time.Millisecond).String(),
		Balances:     make(map[string]string, len(accounts)),
	}
	result.Problems = checkBalances(eng, accounts, opening, amount, result.Balances)
	result.Consistent = len(result.Problems) == 0

	if out.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Consistent {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeInvariant, Message: "balance invariant violated"}
		}
		if err := out.encode(resp); err != nil {
			return err
		}
	} else {
		out.Printf("Stress: %d account(s), %d worker(s), %s\n\n", result.Accounts, opts.Workers, result.Duration)
		out.Printf("  submitted:    %d\n", result.Submitted)
		out.Printf("  committed:    %d\n", result.Committed)
		out.Printf("  insufficient: %d\n", result.Insufficient)
		out.Printf("  retries:      %d\n\n", result.Retries)
		for _, child := range sortedKeys(result.Balances) {
			out.Printf("  %-12s %s\n", child, result.Balances[child])
		}
		out.Printf("\n")
		for _, p := range result.Problems {
			out.Fail("%s", p)
		}
		if result.Consistent {
			out.Pass("Balances consistent with committed withdrawals")
		}
	}

	if !result.Consistent {
		return NewExitError(ExitFailure, "balance invariant violated")
	}
	return nil
}

// stressWithdraw submits one withdrawal, following the account through
// successors when another worker consumed it first.
func stressWithdraw(ctx context.Context, eng *engine.Engine, acct *stressAccount, amount ir.Money, c *stressCounters) error {
	for range maxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := acct.current()
		c.submitted.Add(1)
		out := eng.Submit(ctx, engine.Submission{
			ActingParty: acct.child,
			Kind:        engine.SubmitExercise,
			ContractID:  target,
			Choice:      "WithdrawMoney",
			Arguments: ir.NewRecord(
				ir.F("amount", amount.Value()),
				ir.F("description", ir.Text("stress")),
			),
		})

		switch {
		case out.Committed():
			acct.advance(target, out.ProducedContractIDs[0])
			acct.committed.Add(1)
			c.committed.Add(1)
			return nil
		case out.ErrorKind == ir.ErrConflict || out.ErrorKind == ir.ErrNotActive:
			c.retries.Add(1)
		case out.ErrorReason == ir.ReasonInsufficientFunds:
			c.insufficient.Add(1)
			return nil
		default:
			return fmt.Errorf("withdraw on %s: %s/%s: %s", target, out.ErrorKind, out.ErrorReason, out.ErrorMessage)
		}
	}
	return fmt.Errorf("withdraw for %s: gave up after %d attempts", acct.child, maxAttempts)
}

// checkBalances compares each account's final balance with its opening
// balance less the committed withdrawals.
func checkBalances(eng *engine.Engine, accounts []*stressAccount, opening, amount ir.Money, balances map[string]string) []string {
	var problems []string
	l := eng.Ledger()
	for _, acct := range accounts {
		c, err := l.Get(acct.current())
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", acct.child, err))
			continue
		}
		if !c.IsActive() {
			problems = append(problems, fmt.Sprintf("%s: latest contract %s is %s", acct.child, c.ID, c.Status))
		}
		balance, err := ir.MoneyField(c.Payload, "balance")
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", acct.child, err))
			continue
		}
		balances[string(acct.child)] = balance.String()

		spent, err := amount.Mul(ir.MoneyFromInt(acct.committed.Load()))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", acct.child, err))
			continue
		}
		want, err := opening.Sub(spent)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", acct.child, err))
			continue
		}
		if !balance.Equal(want) {
			problems = append(problems, fmt.Sprintf("%s: balance %s, expected %s", acct.child, balance, want))
		}
		if balance.Sign() < 0 {
			problems = append(problems, fmt.Sprintf("%s: negative balance %s", acct.child, balance))
		}
	}

	active := l.Snapshot().Active(templates.AllowanceAccountTemplate)
	if len(active) != len(accounts) {
		problems = append(problems, fmt.Sprintf("%d active accounts, expected %d", len(active), len(accounts)))
	}
	return problems
}
