package harness

import "github.com/roach88/ledgerd/internal/ir"

// Step status values recorded in the trace.
const (
	StatusCommitted = "committed"
	StatusRejected  = "rejected"
)

// TraceEvent is one submitted step and what the engine made of it.
//
// Action is "<Template>.create" for creates and "<Template>.<Choice>" for
// exercises. Seq, Consumed, Produced and Result are set only for committed
// steps; Kind and Reason only for rejected ones.
type TraceEvent struct {
	Step         int             `json:"step"`
	Action       string          `json:"action"`
	Party        ir.Party        `json:"as"`
	Target       ir.ContractID   `json:"target,omitempty"`
	Args         ir.Record       `json:"args"`
	Status       string          `json:"status"`
	Seq          int64           `json:"seq,omitempty"`
	TransitionID string          `json:"transition_id,omitempty"`
	Consumed     []ir.ContractID `json:"consumed,omitempty"`
	Produced     []ir.ContractID `json:"produced,omitempty"`
	Result       ir.Record       `json:"result,omitempty"`
	Kind         ir.ErrorKind    `json:"kind,omitempty"`
	Reason       ir.Reason       `json:"reason,omitempty"`
}

// Committed reports whether the step took effect.
func (e TraceEvent) Committed() bool {
	return e.Status == StatusCommitted
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation, every assertion
	// held and the journal replayed to the same ledger.
	Pass bool `json:"pass"`

	// Trace holds one event per create or exercise step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes every failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Bindings maps scenario names to the contract ids they were last
	// bound to.
	Bindings map[string]ir.ContractID `json:"bindings,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Bindings: make(map[string]ir.ContractID),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
