package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/query"
	"github.com/roach88/ledgerd/internal/queryir"
)

// AssertionContext is the final ledger state assertions read.
type AssertionContext struct {
	Ledger   *ledger.Store
	Query    *query.Service
	Bindings map[string]ir.ContractID
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s as %s: %s", i+1, event.Action, event.Party, event.Status)
		if event.Kind != "" {
			fmt.Fprintf(&buf, " (%s", event.Kind)
			if event.Reason != "" {
				fmt.Fprintf(&buf, "/%s", event.Reason)
			}
			buf.WriteString(")")
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// assertTraceContains checks that a committed step ran the action with
// matching args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion, bindings map[string]ir.ContractID) error {
	expected, err := toRecord(assertion.Args, bindings)
	if err != nil {
		return &AssertionError{
			Type:     AssertTraceContains,
			Expected: fmt.Sprintf("action %s", assertion.Action),
			Actual:   fmt.Sprintf("invalid args: %v", err),
			Trace:    trace,
		}
	}

	for _, event := range trace {
		if event.Committed() && event.Action == assertion.Action {
			if len(diffRecord("args", event.Args, expected)) == 0 {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %s", assertion.Action, formatValue(expected)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that actions first committed in the given order.
// Actions don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if !event.Committed() {
			continue
		}
		if _, seen := positions[event.Action]; !seen {
			positions[event.Action] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that the action committed exactly Count times.
// Rejected steps never reach the ledger and are not counted.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Committed() && event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertContract checks the status and payload of a bound contract.
func assertContract(actx *AssertionContext, trace []TraceEvent, assertion Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{
			Type:     AssertContract,
			Expected: fmt.Sprintf("%s: %s", assertion.Binding, expected),
			Actual:   actual,
			Trace:    trace,
		}
	}

	id, ok := actx.Bindings[assertion.Binding]
	if !ok {
		return fail("bound contract", "binding never set")
	}
	c, err := actx.Ledger.Get(id)
	if err != nil {
		return fail("existing contract", err.Error())
	}

	if assertion.Active != nil && c.IsActive() != *assertion.Active {
		return fail(fmt.Sprintf("active=%t", *assertion.Active), fmt.Sprintf("%s is %s", id, c.Status))
	}

	if len(assertion.Payload) > 0 {
		expected, err := toRecord(assertion.Payload, actx.Bindings)
		if err != nil {
			return fail("payload", fmt.Sprintf("invalid payload: %v", err))
		}
		if diffs := diffRecord("payload", c.Payload, expected); len(diffs) > 0 {
			return fail(fmt.Sprintf("payload %s", formatValue(expected)), strings.Join(diffs, "; "))
		}
	}
	return nil
}

// assertActiveCount counts the active contracts of a template visible to
// a party, narrowed by Where equalities and a CEL Filter.
func assertActiveCount(actx *AssertionContext, trace []TraceEvent, assertion Assertion) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertActiveCount,
			Expected: fmt.Sprintf("%d active %s visible to %s", assertion.Count, assertion.Template, assertion.Party),
			Actual:   actual,
			Trace:    trace,
		}
	}

	where, err := toRecord(assertion.Where, actx.Bindings)
	if err != nil {
		return fail(fmt.Sprintf("invalid where: %v", err))
	}
	preds := make([]queryir.Predicate, 0, len(where)+1)
	for _, field := range where.SortedKeys() {
		preds = append(preds, queryir.Equals{Field: field, Value: where[field]})
	}
	if assertion.Filter != "" {
		preds = append(preds, queryir.Expr{Source: assertion.Filter})
	}

	seq, err := actx.Query.FindActive(ir.Party(assertion.Party), assertion.Template, queryir.AllOf(preds...))
	if err != nil {
		return fail(fmt.Sprintf("query failed: %v", err))
	}
	var ids []string
	for c := range seq {
		ids = append(ids, c.ID.String())
	}
	if len(ids) != assertion.Count {
		return fail(fmt.Sprintf("%d: %v", len(ids), ids))
	}
	return nil
}

// diffRecord reports how actual differs from expected, looking only at the
// fields expected names. Nested records are compared the same way.
func diffRecord(path string, actual, expected ir.Record) []string {
	var diffs []string
	for _, key := range expected.SortedKeys() {
		want := expected[key]
		field := path + "." + key
		got, ok := actual[key]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing", field))
			continue
		}
		if wantRec, ok := want.(ir.Record); ok {
			if gotRec, ok := got.(ir.Record); ok {
				diffs = append(diffs, diffRecord(field, gotRec, wantRec)...)
				continue
			}
		}
		if !ir.Equal(got, want) {
			diffs = append(diffs, fmt.Sprintf("%s: expected %s, got %s", field, formatValue(want), formatValue(got)))
		}
	}
	return diffs
}

func formatValue(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions runs all assertions and returns their failure
// messages. Contract and active-set assertions need actx.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	bindings := result.Bindings
	if actx != nil && actx.Bindings != nil {
		bindings = actx.Bindings
	}

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, bindings)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertContract, AssertActiveCount:
			if actx == nil || actx.Ledger == nil || actx.Query == nil {
				err = fmt.Errorf("%s assertion requires a ledger", assertion.Type)
				break
			}
			if assertion.Type == AssertContract {
				err = assertContract(actx, result.Trace, assertion)
			} else {
				err = assertActiveCount(actx, result.Trace, assertion)
			}
		default:
			err = fmt.Errorf("unknown assertion type: %s", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errors
}
