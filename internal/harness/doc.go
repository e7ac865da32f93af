// Package harness runs scripted ledger scenarios as executable tests.
//
// A scenario drives the real engine: every step is submitted through
// engine.Submit against a fresh in-memory SQLite journal, with a
// deterministic clock and sequential command ids. After the last step the
// journal is replayed and must reproduce the ledger exactly, then the
// assertions run against the trace and the final active set.
//
// # Scenario Format
//
//	name: allowance_weekly
//	description: "What this scenario validates"
//	start: "2024-01-01T09:00:00Z"
//	steps:
//	  - create: AllowanceAccount
//	    as: parent
//	    payload: { parent: parent, child: emma, balance: "20.00", ... }
//	    bind: acct
//	  - exercise: WithdrawMoney
//	    as: emma
//	    on: acct
//	    args: { amount: "5.00", description: "comic book" }
//	    bind: acct
//	    expect:
//	      result: { balance: "15.00" }
//	  - advance: 168h
//	  - exercise: WithdrawMoney
//	    as: emma
//	    on: acct
//	    args: { amount: "100.00", description: "bike" }
//	    expect: { kind: InvalidArgument, reason: InsufficientFunds }
//	assertions:
//	  - type: contract
//	    binding: acct
//	    payload: { balance: "15.00" }
//
// Money is always a quoted decimal string; YAML floats are rejected. A
// string "$name" in a payload or args is replaced by the contract id last
// bound to name, which is how a choice argument refers to another
// contract.
//
// # Assertion Types
//
//   - trace_contains: a committed step ran the action with matching args
//   - trace_order: actions first committed in the given order
//   - trace_count: an action committed exactly N times
//   - contract: a bound contract's status and payload fields
//   - active_count: how many active contracts of a template a party sees,
//     narrowed by field equalities and a CEL filter
//
// # Golden Traces
//
// RunWithGolden compares a scenario's trace, rendered as canonical JSON,
// with testdata/golden/<name>.golden. Regenerate with -update.
package harness
