package templates

import (
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/registry"
)

// Template names of the allowance family.
const (
	AllowanceAccountTemplate = "AllowanceAccount"
	TaskTemplate             = "Task"
	TaskCompletionTemplate   = "TaskCompletion"
)

// WeeklyInterval is the minimum number of days between weekly allowance payments.
const WeeklyInterval = 7

// AllowanceAccount is the typed view of an AllowanceAccount payload.
type AllowanceAccount struct {
	Parent          ir.Party
	Child           ir.Party
	ChildName       string
	Balance         ir.Money
	WeeklyAmount    ir.Money
	Currency        string
	LastPaymentDate ir.Date
}

// DecodeAllowanceAccount reads an AllowanceAccount payload.
func DecodeAllowanceAccount(r ir.Record) (AllowanceAccount, error) {
	fr := &fieldReader{r: r}
	a := AllowanceAccount{
		Parent:          fr.party("parent"),
		Child:           fr.party("child"),
		ChildName:       fr.text("childName"),
		Balance:         fr.money("balance"),
		WeeklyAmount:    fr.money("weeklyAmount"),
		Currency:        fr.text("currency"),
		LastPaymentDate: fr.date("lastPaymentDate"),
	}
	return a, fr.err
}

// Record encodes the account as a payload.
func (a AllowanceAccount) Record() ir.Record {
	return ir.NewRecord(
		ir.F("parent", ir.Text(a.Parent)),
		ir.F("child", ir.Text(a.Child)),
		ir.F("childName", ir.Text(a.ChildName)),
		ir.F("balance", a.Balance.Value()),
		ir.F("weeklyAmount", a.WeeklyAmount.Value()),
		ir.F("currency", ir.Text(a.Currency)),
		ir.F("lastPaymentDate", a.LastPaymentDate.Value()),
	)
}

// Task is the typed view of a Task payload.
type Task struct {
	Parent      ir.Party
	Child       ir.Party
	ChildName   string
	Description string
	Reward      ir.Money
	DueDate     ir.Date
	Currency    string
}

// DecodeTask reads a Task payload.
func DecodeTask(r ir.Record) (Task, error) {
	fr := &fieldReader{r: r}
	t := Task{
		Parent:      fr.party("parent"),
		Child:       fr.party("child"),
		ChildName:   fr.text("childName"),
		Description: fr.text("description"),
		Reward:      fr.money("reward"),
		DueDate:     fr.date("dueDate"),
		Currency:    fr.text("currency"),
	}
	return t, fr.err
}

// Record encodes the task as a payload.
func (t Task) Record() ir.Record {
	return ir.NewRecord(
		ir.F("parent", ir.Text(t.Parent)),
		ir.F("child", ir.Text(t.Child)),
		ir.F("childName", ir.Text(t.ChildName)),
		ir.F("description", ir.Text(t.Description)),
		ir.F("reward", t.Reward.Value()),
		ir.F("dueDate", t.DueDate.Value()),
		ir.F("currency", ir.Text(t.Currency)),
	)
}

// TaskCompletion is a Task the child has finished, pending approval.
type TaskCompletion struct {
	Task
	CompletionDate ir.Date
}

// DecodeTaskCompletion reads a TaskCompletion payload.
func DecodeTaskCompletion(r ir.Record) (TaskCompletion, error) {
	t, err := DecodeTask(r)
	if err != nil {
		return TaskCompletion{}, err
	}
	fr := &fieldReader{r: r}
	c := TaskCompletion{Task: t, CompletionDate: fr.date("completionDate")}
	return c, fr.err
}

// Record encodes the completion as a payload.
func (c TaskCompletion) Record() ir.Record {
	return c.Task.Record().With(ir.F("completionDate", c.CompletionDate.Value()))
}

func allowanceBindings() []registry.Binding {
	return []registry.Binding{
		{
			Template: AllowanceAccountTemplate,
			Ensure:   ensureAllowanceAccount,
			Choices: map[string]registry.ChoiceFunc{
				"PayWeeklyAllowance": payWeeklyAllowance,
				"MakeBonusPayment":   makeBonusPayment,
				"WithdrawMoney":      withdrawMoney,
			},
		},
		{
			Template: TaskTemplate,
			Ensure:   ensureTask,
			Choices: map[string]registry.ChoiceFunc{
				"CompleteTask": completeTask,
				"CancelTask":   cancelTask,
			},
		},
		{
			Template: TaskCompletionTemplate,
			Ensure:   ensureTaskCompletion,
			Choices: map[string]registry.ChoiceFunc{
				"ApproveAndPay":    approveAndPay,
				"RejectCompletion": rejectCompletion,
			},
		},
	}
}

func ensureAllowanceAccount(p ir.Record) error {
	a, err := DecodeAllowanceAccount(p)
	if err != nil {
		return err
	}
	if a.Parent == a.Child {
		return ir.Invalid(ir.ReasonPrecondition, "parent and child must be different parties")
	}
	if err := requireNonNegative(a.Balance, "balance"); err != nil {
		return err
	}
	return requireNonNegative(a.WeeklyAmount, "weeklyAmount")
}

func ensureTask(p ir.Record) error {
	t, err := DecodeTask(p)
	if err != nil {
		return err
	}
	if t.Parent == t.Child {
		return ir.Invalid(ir.ReasonPrecondition, "parent and child must be different parties")
	}
	return requirePositive(t.Reward, "reward")
}

func ensureTaskCompletion(p ir.Record) error {
	c, err := DecodeTaskCompletion(p)
	if err != nil {
		return err
	}
	return requirePositive(c.Reward, "reward")
}

func payWeeklyAllowance(_ registry.Context, self, args ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	acct, err := DecodeAllowanceAccount(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	today, err := ir.DateField(args, "today")
	if err != nil {
		return registry.Outcome{}, err
	}

	if days := today.DaysSince(acct.LastPaymentDate); days < WeeklyInterval {
		return registry.Outcome{}, ir.Invalid(ir.ReasonTooEarly,
			"last allowance was paid %d days ago, payments are at least %d days apart", days, WeeklyInterval)
	}

	acct.Balance, err = acct.Balance.Add(acct.WeeklyAmount)
	if err != nil {
		return registry.Outcome{}, err
	}
	acct.LastPaymentDate = today

	return registry.Outcome{
		Produced: []registry.Output{{Template: AllowanceAccountTemplate, Payload: acct.Record()}},
		Result: ir.NewRecord(
			ir.F("paid", acct.WeeklyAmount.Value()),
			ir.F("balance", acct.Balance.Value()),
		),
	}, nil
}

func makeBonusPayment(_ registry.Context, self, args ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	acct, err := DecodeAllowanceAccount(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	amount, err := ir.MoneyField(args, "amount")
	if err != nil {
		return registry.Outcome{}, err
	}
	if err := requirePositive(amount, "bonus amount"); err != nil {
		return registry.Outcome{}, err
	}

	acct.Balance, err = acct.Balance.Add(amount)
	if err != nil {
		return registry.Outcome{}, err
	}

	return registry.Outcome{
		Produced: []registry.Output{{Template: AllowanceAccountTemplate, Payload: acct.Record()}},
		Result: ir.NewRecord(
			ir.F("paid", amount.Value()),
			ir.F("reason", args["reason"]),
			ir.F("balance", acct.Balance.Value()),
		),
	}, nil
}

// withdrawMoney rejects both non-positive amounts and overdrafts as
// InsufficientFunds; balance never goes below zero.
func withdrawMoney(_ registry.Context, self, args ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	acct, err := DecodeAllowanceAccount(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	amount, err := ir.MoneyField(args, "amount")
	if err != nil {
		return registry.Outcome{}, err
	}

	if !amount.IsPositive() {
		return registry.Outcome{}, ir.Invalid(ir.ReasonInsufficientFunds, "withdrawal amount must be positive")
	}
	if amount.Cmp(acct.Balance) > 0 {
		return registry.Outcome{}, ir.Invalid(ir.ReasonInsufficientFunds, "withdrawal exceeds available balance")
	}

	acct.Balance, err = acct.Balance.Sub(amount)
	if err != nil {
		return registry.Outcome{}, err
	}

	return registry.Outcome{
		Produced: []registry.Output{{Template: AllowanceAccountTemplate, Payload: acct.Record()}},
		Result: ir.NewRecord(
			ir.F("withdrawn", amount.Value()),
			ir.F("description", args["description"]),
			ir.F("balance", acct.Balance.Value()),
		),
	}, nil
}

// completeTask moves the task to pending approval. Completing after the
// due date is rejected as PastDue.
func completeTask(_ registry.Context, self, args ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	task, err := DecodeTask(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	completed, err := ir.DateField(args, "completionDate")
	if err != nil {
		return registry.Outcome{}, err
	}
	if completed.After(task.DueDate) {
		return registry.Outcome{}, ir.Invalid(ir.ReasonPastDue, "task completed after its due date")
	}

	c := TaskCompletion{Task: task, CompletionDate: completed}
	return registry.Outcome{
		Produced: []registry.Output{{Template: TaskCompletionTemplate, Payload: c.Record()}},
		Result:   ir.NewRecord(ir.F("status", ir.Text("pending approval"))),
	}, nil
}

func cancelTask(_ registry.Context, _, _ ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	return registry.Outcome{Result: ir.NewRecord(ir.F("status", ir.Text("cancelled")))}, nil
}

// approveAndPay consumes the completion and the child's account, crediting
// the reward. The account must belong to the same parent and child and be
// held in the task's currency.
func approveAndPay(_ registry.Context, self, _ ir.Record, refs map[string]ir.Contract) (registry.Outcome, error) {
	c, err := DecodeTaskCompletion(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	ref := refs["allowanceAccountCid"]
	acct, err := DecodeAllowanceAccount(ref.Payload)
	if err != nil {
		return registry.Outcome{}, err
	}

	switch {
	case acct.Parent != c.Parent || acct.Child != c.Child:
		return registry.Outcome{}, ir.Invalid(ir.ReasonMismatch, "allowance account belongs to a different family").OnContract(ref.ID)
	case acct.Currency != c.Currency:
		return registry.Outcome{}, ir.Invalid(ir.ReasonMismatch, "allowance account currency differs from task currency").OnContract(ref.ID)
	}

	acct.Balance, err = acct.Balance.Add(c.Reward)
	if err != nil {
		return registry.Outcome{}, err
	}

	return registry.Outcome{
		Produced: []registry.Output{{Template: AllowanceAccountTemplate, Payload: acct.Record()}},
		Result: ir.NewRecord(
			ir.F("paid", c.Reward.Value()),
			ir.F("balance", acct.Balance.Value()),
		),
	}, nil
}

// rejectCompletion hands the task back to the child.
func rejectCompletion(_ registry.Context, self, args ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	c, err := DecodeTaskCompletion(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	return registry.Outcome{
		Produced: []registry.Output{{Template: TaskTemplate, Payload: c.Task.Record()}},
		Result: ir.NewRecord(
			ir.F("status", ir.Text("rejected")),
			ir.F("reason", args["reason"]),
		),
	}, nil
}
