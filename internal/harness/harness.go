package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/ledgerd/internal/compiler"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/query"
	"github.com/roach88/ledgerd/internal/registry"
	"github.com/roach88/ledgerd/internal/store"
	"github.com/roach88/ledgerd/internal/templates"
	"github.com/roach88/ledgerd/internal/testutil"
)

// Harness runs one scenario against a real engine backed by an in-memory
// journal, with a deterministic clock and command ids.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger for the harness and the engine under test.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal for isolation. Steps are
// submitted in order; a step that misses its expectation is recorded as an
// error and the run continues, so one result reports every failure. After
// the last step the journal is replayed and must reproduce the ledger
// transition for transition, then the assertions are evaluated.
//
// The returned error is reserved for setup failures: an unreadable
// catalogue or a journal that cannot be opened.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	start, err := scenario.StartTime()
	if err != nil {
		return nil, err
	}
	reg, err := loadRegistry(scenario.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	if err := st.BindCatalogue(ctx, reg.Hash()); err != nil {
		return nil, fmt.Errorf("failed to bind catalogue: %w", err)
	}

	clock := testutil.NewDeterministicClock(start)
	l := ledger.New(ledger.WithJournal(st), ledger.WithLogger(cfg.logger))
	eng := engine.New(reg, l,
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequentialIDs(scenario.Name)),
		engine.WithLogger(cfg.logger),
	)

	h := &Harness{
		store:  st,
		engine: eng,
		clock:  clock,
		logger: cfg.logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.execute(ctx, i, step, result)
	}
	h.verifyReplay(ctx, result)

	qs, err := query.New(reg, l, query.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	actx := &AssertionContext{
		Ledger:   l,
		Query:    qs,
		Bindings: result.Bindings,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func loadRegistry(dir string) (*registry.Registry, error) {
	if dir == "" {
		return templates.NewRegistry()
	}
	specs, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return templates.NewRegistry(specs...)
}

// execute runs one step. Clock steps only move the clock; submissions are
// traced and checked against their expectation.
func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) {
	switch step.Kind() {
	case StepAdvance:
		d, _ := time.ParseDuration(step.Advance)
		h.clock.Advance(d)
		return
	case StepAt:
		t, _ := time.Parse(time.RFC3339, step.At)
		h.clock.Set(t)
		return
	}

	sub, event, err := h.submission(i, step, result.Bindings)
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		return
	}

	out := h.engine.Submit(ctx, sub)
	event.Status = string(out.Status)
	if out.Committed() {
		event.Seq = out.Seq
		event.TransitionID = out.TransitionID
		event.Produced = out.ProducedContractIDs
		event.Consumed = h.consumed(out.Seq)
		event.Result = out.Result
	} else {
		event.Kind = out.ErrorKind
		event.Reason = out.ErrorReason
	}
	result.AddTrace(event)

	if step.Bind != "" && out.Committed() {
		if len(out.ProducedContractIDs) == 0 {
			result.AddError(fmt.Sprintf("steps[%d] %s: bind %q: step produced no contract", i, event.Action, step.Bind))
		} else {
			result.Bindings[step.Bind] = out.ProducedContractIDs[0]
		}
	}

	for _, msg := range checkExpect(step.Expect, out, result.Bindings) {
		result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, event.Action, msg))
	}

	h.logger.Info("step completed",
		"step", i,
		"action", event.Action,
		"status", out.Status,
		"seq", out.Seq,
	)
}

// submission builds the engine submission for a create or exercise step
// and the trace event describing it.
func (h *Harness) submission(i int, step Step, bindings map[string]ir.ContractID) (engine.Submission, TraceEvent, error) {
	event := TraceEvent{Step: i, Party: ir.Party(step.As)}

	if step.Kind() == StepCreate {
		payload, err := toRecord(step.Payload, bindings)
		if err != nil {
			return engine.Submission{}, event, fmt.Errorf("payload: %w", err)
		}
		event.Action = step.Create + ".create"
		event.Args = payload
		return engine.Submission{
			ActingParty: event.Party,
			Kind:        engine.SubmitCreate,
			Template:    step.Create,
			Arguments:   payload,
		}, event, nil
	}

	name := strings.TrimPrefix(step.On, "$")
	id, ok := bindings[name]
	if !ok {
		return engine.Submission{}, event, fmt.Errorf("on: unknown binding %q", name)
	}
	c, err := h.engine.Ledger().Get(id)
	if err != nil {
		return engine.Submission{}, event, fmt.Errorf("on: %w", err)
	}
	args, err := toRecord(step.Args, bindings)
	if err != nil {
		return engine.Submission{}, event, fmt.Errorf("args: %w", err)
	}

	event.Action = c.Template + "." + step.Exercise
	event.Target = id
	event.Args = args
	return engine.Submission{
		ActingParty: event.Party,
		Kind:        engine.SubmitExercise,
		ContractID:  id,
		Choice:      step.Exercise,
		Arguments:   args,
	}, event, nil
}

// consumed looks up what the transition at seq archived.
func (h *Harness) consumed(seq int64) []ir.ContractID {
	for _, t := range h.engine.Ledger().Log() {
		if t.Seq == seq {
			return t.Consumed
		}
	}
	return nil
}

// verifyReplay rebuilds the ledger from the journal and compares it with
// the live one, transition by transition.
func (h *Harness) verifyReplay(ctx context.Context, result *Result) {
	replayed, _, err := h.store.Replay(ctx, ledger.WithLogger(h.logger), ledger.WithKeys(h.engine.Registry().Key))
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
		return
	}

	want, got := h.engine.Ledger().Log(), replayed.Log()
	if len(want) != len(got) {
		result.AddError(fmt.Sprintf("replay: journal holds %d transitions, ledger %d", len(got), len(want)))
		return
	}
	for i := range want {
		if want[i].ID != got[i].ID {
			result.AddError(fmt.Sprintf("replay: seq %d replayed as %s, committed as %s", want[i].Seq, got[i].ID, want[i].ID))
			return
		}
	}
}

// checkExpect compares an outcome with a step's expectation. A step
// without one must commit.
func checkExpect(exp *Expect, out engine.Outcome, bindings map[string]ir.ContractID) []string {
	want := StatusCommitted
	if exp != nil {
		want = exp.Status
	}

	if string(out.Status) != want {
		if out.Committed() {
			return []string{fmt.Sprintf("expected %s, got committed", want)}
		}
		return []string{fmt.Sprintf("expected %s, got %s: %s", want, out.Status, out.ErrorMessage)}
	}
	if exp == nil {
		return nil
	}

	var errs []string
	if exp.Kind != "" && string(out.ErrorKind) != exp.Kind {
		errs = append(errs, fmt.Sprintf("expected kind %s, got %s", exp.Kind, out.ErrorKind))
	}
	if exp.Reason != "" && string(out.ErrorReason) != exp.Reason {
		errs = append(errs, fmt.Sprintf("expected reason %s, got %s", exp.Reason, out.ErrorReason))
	}
	if exp.Result != nil {
		expected, err := toRecord(exp.Result, bindings)
		if err != nil {
			return append(errs, fmt.Sprintf("expect.result: %v", err))
		}
		errs = append(errs, diffRecord("result", out.Result, expected)...)
	}
	return errs
}

// toRecord converts YAML-decoded values to a Record, substituting "$name"
// strings with bound contract ids.
func toRecord(m map[string]any, bindings map[string]ir.ContractID) (ir.Record, error) {
	if m == nil {
		return ir.Record{}, nil
	}
	resolved, err := substitute(m, bindings)
	if err != nil {
		return nil, err
	}
	v, err := ir.FromGo(resolved)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(ir.Record)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
	return rec, nil
}

// substitute walks a YAML-decoded value, replacing binding references.
// Nulls are rejected here with a clearer message than payload validation
// would give.
func substitute(v any, bindings map[string]ir.ContractID) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null values are not allowed")
	case string:
		name, ok := strings.CutPrefix(val, "$")
		if !ok {
			return val, nil
		}
		id, bound := bindings[name]
		if !bound {
			return nil, fmt.Errorf("unknown binding %q", name)
		}
		return ir.Int(id), nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			conv, err := substitute(elem, bindings)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			conv, err := substitute(elem, bindings)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}
