package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ledgerd/internal/ir"
)

// Snapshot renders a result's trace as canonical JSON for golden
// comparison.
//
// Transition ids are left out: they hash everything else in the event, so
// a changed id always shows up as a changed field, and the replay check in
// Run already proves they are reproducible.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(ir.List, len(result.Trace))
	for i, event := range result.Trace {
		trace[i] = eventRecord(event)
	}
	return ir.MarshalCanonical(ir.Record{
		"scenario": ir.Text(scenarioName),
		"trace":    trace,
	})
}

func eventRecord(e TraceEvent) ir.Record {
	rec := ir.Record{
		"step":   ir.Int(e.Step),
		"action": ir.Text(e.Action),
		"as":     ir.Text(e.Party),
		"status": ir.Text(e.Status),
		"args":   orEmpty(e.Args),
	}
	if e.Target != 0 {
		rec["target"] = ir.Int(e.Target)
	}
	if e.Committed() {
		rec["seq"] = ir.Int(e.Seq)
		rec["consumed"] = idList(e.Consumed)
		rec["produced"] = idList(e.Produced)
		rec["result"] = orEmpty(e.Result)
		return rec
	}
	rec["kind"] = ir.Text(e.Kind)
	if e.Reason != "" {
		rec["reason"] = ir.Text(e.Reason)
	}
	return rec
}

func idList(ids []ir.ContractID) ir.List {
	out := make(ir.List, len(ids))
	for i, id := range ids {
		out[i] = ir.Int(id)
	}
	return out
}

func orEmpty(r ir.Record) ir.Record {
	if r == nil {
		return ir.Record{}
	}
	return r
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
