package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 0, Action: "Task.create", Party: "parent", Status: StatusCommitted, Seq: 1,
			Args: ir.NewRecord(ir.F("description", ir.Text("dishes")), ir.F("reward", ir.Text("2.00")))},
		{Step: 1, Action: "Task.CompleteTask", Party: "emma", Status: StatusRejected,
			Kind: ir.ErrInvalidArgument, Reason: ir.ReasonPastDue,
			Args: ir.NewRecord(ir.F("completionDate", ir.Text("2024-02-01")))},
		{Step: 2, Action: "Task.CompleteTask", Party: "emma", Status: StatusCommitted, Seq: 2,
			Args: ir.NewRecord(ir.F("completionDate", ir.Text("2024-01-05")))},
		{Step: 3, Action: "TaskCompletion.ApproveAndPay", Party: "parent", Status: StatusCommitted, Seq: 3,
			Args: ir.NewRecord(ir.F("allowanceAccountCid", ir.Int(7)))},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	bindings := map[string]ir.ContractID{"acct": 7}

	tests := []struct {
		name string
		a    Assertion
		pass bool
	}{
		{"action only", Assertion{Action: "Task.create"}, true},
		{"subset of args", Assertion{Action: "Task.create", Args: map[string]any{"reward": "2.00"}}, true},
		{"wrong arg value", Assertion{Action: "Task.create", Args: map[string]any{"reward": "3.00"}}, false},
		{"unknown action", Assertion{Action: "Task.CancelTask"}, false},
		{"rejected steps do not count", Assertion{Action: "Task.CompleteTask", Args: map[string]any{"completionDate": "2024-02-01"}}, false},
		{"binding reference", Assertion{Action: "TaskCompletion.ApproveAndPay", Args: map[string]any{"allowanceAccountCid": "$acct"}}, true},
		{"int literal", Assertion{Action: "TaskCompletion.ApproveAndPay", Args: map[string]any{"allowanceAccountCid": 7}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, tt.a, bindings)
			if tt.pass {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceContains, ae.Type)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"Task.create", "TaskCompletion.ApproveAndPay"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"Task.create", "Task.CompleteTask", "TaskCompletion.ApproveAndPay"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"TaskCompletion.ApproveAndPay", "Task.create"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TaskCompletion.ApproveAndPay (pos 4) should be before Task.create (pos 1)")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"Task.create", "Task.CancelTask"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: Task.CancelTask")
}

func TestAssertTraceOrder_UsesFirstCommit(t *testing.T) {
	// The first CompleteTask was rejected, so the committed one sits at
	// position 3, still after the create.
	err := assertTraceOrder(sampleTrace(), Assertion{Actions: []string{"Task.CompleteTask", "Task.create"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Task.CompleteTask (pos 3) should be before Task.create (pos 1)")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Task.CompleteTask", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Task.CancelTask", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "Task.CompleteTask", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 occurrences of Task.CompleteTask")
	assert.Contains(t, err.Error(), "Actual: 1 occurrences")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 occurrences of Task.CompleteTask",
		Actual:   "1 occurrences",
		Trace:    sampleTrace()[:2],
	}

	assert.Equal(t, "Assertion failed: trace_count\n"+
		"  Expected: 2 occurrences of Task.CompleteTask\n"+
		"  Actual: 1 occurrences\n"+
		"\nFull trace:\n"+
		"  [1] Task.create as parent: committed\n"+
		"  [2] Task.CompleteTask as emma: rejected (InvalidArgument/PastDue)\n",
		err.Error())
}

func TestDiffRecord(t *testing.T) {
	actual := ir.NewRecord(
		ir.F("balance", ir.Text("25.00")),
		ir.F("period", ir.Int(2)),
		ir.F("bondData", ir.NewRecord(
			ir.F("isin", ir.Text("US0000000001")),
			ir.F("issuer", ir.Text("acme")),
		)),
	)

	assert.Empty(t, diffRecord("payload", actual, ir.Record{}))
	assert.Empty(t, diffRecord("payload", actual, ir.NewRecord(
		ir.F("period", ir.Int(2)),
		ir.F("bondData", ir.NewRecord(ir.F("issuer", ir.Text("acme")))),
	)))

	assert.Equal(t, []string{
		`payload.balance: expected "30.00", got "25.00"`,
		`payload.bondData.isin: expected "X", got "US0000000001"`,
		`payload.missing: missing`,
		`payload.period: expected "2", got 2`,
	}, diffRecord("payload", actual, ir.NewRecord(
		ir.F("balance", ir.Text("30.00")),
		ir.F("bondData", ir.NewRecord(ir.F("isin", ir.Text("X")))),
		ir.F("missing", ir.Bool(true)),
		ir.F("period", ir.Text("2")),
	)))
}

func TestEvaluateAssertions_TraceOnly(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "Task.create"},
		{Type: AssertTraceCount, Action: "Task.create", Count: 3},
		{Type: "final_state"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertions[1]: Assertion failed: trace_count")
	assert.Equal(t, "assertions[2]: unknown assertion type: final_state", errs[1])
}

func TestEvaluateAssertions_LedgerAssertionsNeedContext(t *testing.T) {
	active := true
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertContract, Binding: "acct", Active: &active},
		{Type: AssertActiveCount, Template: "Task", Party: "parent"},
	}, nil)

	assert.Equal(t, []string{
		"assertions[0]: contract assertion requires a ledger",
		"assertions[1]: active_count assertion requires a ledger",
	}, errs)
}

// ledgerAssertions runs the withdrawal scenario with the given final
// assertions and returns the failure messages.
func ledgerAssertions(t *testing.T, assertions ...Assertion) []string {
	t.Helper()
	s := withdrawal("5.00", nil)
	s.Assertions = assertions
	require.NoError(t, validateScenario(s))

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result.Errors
}

func TestAssertContract(t *testing.T) {
	active, archived := true, false

	assert.Empty(t, ledgerAssertions(t,
		Assertion{Type: AssertContract, Binding: "acct", Active: &active,
			Payload: map[string]any{"balance": "15.00", "child": "emma"}},
	))

	errs := ledgerAssertions(t,
		Assertion{Type: AssertContract, Binding: "acct", Active: &archived},
		Assertion{Type: AssertContract, Binding: "acct", Payload: map[string]any{"balance": "20.00"}},
		Assertion{Type: AssertContract, Binding: "nobody", Active: &active},
	)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Expected: acct: active=false")
	assert.Contains(t, errs[0], "Actual: #2 is active")
	assert.Contains(t, errs[1], `payload.balance: expected "20.00", got "15.00"`)
	assert.Contains(t, errs[2], "binding never set")
}

func TestAssertActiveCount(t *testing.T) {
	assert.Empty(t, ledgerAssertions(t,
		Assertion{Type: AssertActiveCount, Template: "AllowanceAccount", Party: "emma", Count: 1},
		Assertion{Type: AssertActiveCount, Template: "AllowanceAccount", Party: "noah", Count: 0},
		Assertion{Type: AssertActiveCount, Template: "AllowanceAccount", Party: "parent", Count: 1,
			Where: map[string]any{"child": "emma", "currency": "USD"}},
		Assertion{Type: AssertActiveCount, Template: "AllowanceAccount", Party: "parent", Count: 0,
			Where: map[string]any{"currency": "EUR"}},
		Assertion{Type: AssertActiveCount, Template: "AllowanceAccount", Party: "parent", Count: 1,
			Filter: `payload.balance == "15.00" && "emma" in observers`},
	))

	errs := ledgerAssertions(t,
		Assertion{Type: AssertActiveCount, Template: "AllowanceAccount", Party: "emma", Count: 2},
		Assertion{Type: AssertActiveCount, Template: "Bond", Party: "emma", Count: 0},
		Assertion{Type: AssertActiveCount, Template: "AllowanceAccount", Party: "emma", Count: 0,
			Where: map[string]any{"colour": "red"}},
	)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Actual: 1: [#2]")
	assert.Contains(t, errs[1], "query failed: UnknownTemplate")
	assert.Contains(t, errs[2], `filter names unknown field "colour"`)
}
