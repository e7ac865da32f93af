package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/ledgerd/internal/authz"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/registry"
)

// Observer receives committed transitions in seq order.
type Observer interface {
	Name() string
	Observe(ctx context.Context, t ir.Transition) error
}

// Engine executes submissions against a ledger.
//
// Thread-safety model:
//   - Create, Exercise, Submit: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Close: safe from any goroutine, idempotent
type Engine struct {
	registry  *registry.Registry
	ledger    *ledger.Store
	clock     Clock
	ids       CommandIDGenerator
	observers []Observer
	events    *eventQueue
	logger    *slog.Logger

	// commitMu orders enqueueing with commit order.
	commitMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the ledger-time source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the command id generator used when a submission
// carries no command id. Default: UUIDv7Generator.
func WithIDGenerator(g CommandIDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithObserver registers an observer of committed transitions.
// Observers are only fed while Run is running.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine over a registry and a ledger. The ledger is made
// to enforce the registry's contract keys.
func New(reg *registry.Registry, l *ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		ledger:   l,
		clock:    SystemClock{},
		ids:      UUIDv7Generator{},
		events:   newEventQueue(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if l != nil {
		l.UseKeys(reg.Key)
	}
	return e
}

// Registry returns the template registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Ledger returns the contract store.
func (e *Engine) Ledger() *ledger.Store {
	return e.ledger
}

// Result describes a committed submission.
type Result struct {
	TransitionID string
	Seq          int64
	CommandID    string
	Produced     []ir.ContractID
	Value        ir.Record
}

// Create creates a contract of template with payload on behalf of actor.
// Fails UnknownTemplate, InvalidArgument (schema or ensure clause), or
// Unauthorized when actor is not a signatory.
func (e *Engine) Create(ctx context.Context, actor ir.Party, template string, payload ir.Record) (Result, error) {
	return e.create(ctx, "", actor, template, payload)
}

// Exercise exercises choice on contract id on behalf of actor.
//
// Fails NotFound when the contract does not exist or is not visible to
// actor, NotActive when it is archived, UnknownChoice, Unauthorized,
// InvalidArgument for bad arguments or a violated business rule, and
// Conflict when a concurrent transition consumed a contract first.
func (e *Engine) Exercise(ctx context.Context, actor ir.Party, id ir.ContractID, choice string, args ir.Record) (Result, error) {
	return e.exercise(ctx, "", actor, id, choice, args)
}

func (e *Engine) create(ctx context.Context, commandID string, actor ir.Party, template string, payload ir.Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("create: %w", err)
	}

	tmpl, err := e.registry.Resolve(template)
	if err != nil {
		return Result{}, err
	}
	if payload == nil {
		payload = ir.Record{}
	}
	if err := tmpl.ValidatePayload(payload); err != nil {
		return Result{}, annotate(err, template, "", 0)
	}
	if err := authz.AuthorizeCreate(actor, tmpl, payload); err != nil {
		return Result{}, err
	}

	sigs, obs := tmpl.Parties(payload)
	return e.commit(ctx, ledger.Pending{
		CommandID:   e.commandID(commandID),
		Timestamp:   e.clock.Now(),
		ActingParty: actor,
		Kind:        ir.TransitionCreate,
		Template:    template,
		Args:        ir.Record{},
		Produced: []ledger.Draft{{
			Template:    template,
			Signatories: sigs,
			Observers:   obs,
			Payload:     payload.Clone(),
		}},
		Result: ir.Record{},
	})
}

func (e *Engine) exercise(ctx context.Context, commandID string, actor ir.Party, id ir.ContractID, choiceName string, args ir.Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("exercise: %w", err)
	}
	if args == nil {
		args = ir.Record{}
	}

	target, err := e.visible(actor, id)
	if err != nil {
		return Result{}, err
	}

	choice, err := e.registry.Choice(target.Template, choiceName)
	if err != nil {
		return Result{}, err
	}
	// Only the controller learns whether its arguments are well formed.
	if err := authz.AuthorizeController(actor, choice, target); err != nil {
		return Result{}, err
	}
	if err := choice.ValidateArgs(args); err != nil {
		return Result{}, annotate(err, target.Template, choiceName, id)
	}

	refIDs := choice.ConsumedRefs(args)
	refs, err := e.resolveRefs(actor, choice, target, refIDs)
	if err != nil {
		return Result{}, err
	}
	if err := authz.AuthorizeRefs(actor, choice, refs); err != nil {
		return Result{}, err
	}

	now := e.clock.Now()
	out, err := choice.Apply(registry.Context{
		Actor:      actor,
		ContractID: id,
		LedgerTime: now,
	}, target.Payload.Clone(), args.Clone(), cloneRefs(refs))
	if err != nil {
		return Result{}, annotate(err, target.Template, choiceName, id)
	}

	drafts, err := e.drafts(out.Produced)
	if err != nil {
		return Result{}, annotate(err, target.Template, choiceName, id)
	}

	if err := authz.AuthorizeProduced(actor, authorizing(target, refs), drafts); err != nil {
		return Result{}, annotate(err, target.Template, choiceName, id)
	}

	consumed := consumedIDs(target, refs, choice.Spec.NonConsuming)
	var requires []ir.ContractID
	if choice.Spec.NonConsuming {
		requires = []ir.ContractID{id}
	}

	return e.commit(ctx, ledger.Pending{
		CommandID:   e.commandID(commandID),
		Timestamp:   now,
		ActingParty: actor,
		Kind:        ir.TransitionExercise,
		Template:    target.Template,
		Choice:      choiceName,
		Target:      id,
		Args:        args,
		Consumed:    consumed,
		Requires:    requires,
		Produced:    drafts,
		Result:      out.Result,
		Check:       authz.Recheck(actor, choice, id, refIDs, drafts),
	})
}

// visible returns an active contract actor can see. A contract actor cannot
// see is reported exactly like one that does not exist.
func (e *Engine) visible(actor ir.Party, id ir.ContractID) (ir.Contract, error) {
	c, err := e.ledger.Get(id)
	if err != nil {
		return ir.Contract{}, err
	}
	if !c.VisibleTo(actor) {
		return ir.Contract{}, ir.Errorf(ir.ErrNotFound, "contract not found").OnContract(id)
	}
	if !c.IsActive() {
		return ir.Contract{}, ir.Errorf(ir.ErrNotActive, "contract is archived").OnContract(id)
	}
	return c, nil
}

// resolveRefs loads the contracts named by the choice's consuming
// arguments and checks each has the declared template.
func (e *Engine) resolveRefs(actor ir.Party, choice *registry.Choice, target ir.Contract, ids map[string]ir.ContractID) (map[string]ir.Contract, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make(map[string]ir.Contract, len(ids))
	for _, arg := range sortedKeys(ids) {
		id := ids[arg]
		if id == target.ID {
			return nil, ir.Invalid(ir.ReasonPrecondition, "argument %q names the exercised contract", arg).
				OnContract(id).OnChoice(target.Template, choice.Name())
		}
		ref, err := e.visible(actor, id)
		if err != nil {
			return nil, err
		}
		if want := choice.Spec.Consumes[arg].Template; ref.Template != want {
			return nil, ir.Invalid(ir.ReasonMismatch, "argument %q must name a %s contract", arg, want).
				OnContract(id).OnChoice(target.Template, choice.Name())
		}
		refs[arg] = ref
	}
	return refs, nil
}

// drafts validates produced payloads and computes their parties.
func (e *Engine) drafts(outputs []registry.Output) ([]ledger.Draft, error) {
	drafts := make([]ledger.Draft, 0, len(outputs))
	for _, o := range outputs {
		tmpl, err := e.registry.Resolve(o.Template)
		if err != nil {
			return nil, err
		}
		if err := tmpl.ValidatePayload(o.Payload); err != nil {
			return nil, fmt.Errorf("produced %s: %w", o.Template, err)
		}
		sigs, obs := tmpl.Parties(o.Payload)
		drafts = append(drafts, ledger.Draft{
			Template:    o.Template,
			Signatories: sigs,
			Observers:   obs,
			Payload:     o.Payload,
		})
	}
	return drafts, nil
}

// commit commits p and queues the transition for observers in seq order.
func (e *Engine) commit(ctx context.Context, p ledger.Pending) (Result, error) {
	e.commitMu.Lock()
	t, err := e.ledger.Commit(ctx, p)
	if err == nil && len(e.observers) > 0 {
		e.events.Enqueue(t)
	}
	e.commitMu.Unlock()

	if err != nil {
		e.logger.Debug("submission rejected",
			"command_id", p.CommandID,
			"actor", p.ActingParty,
			"template", p.Template,
			"choice", p.Choice,
			"kind", ir.KindOf(err),
			"error", err,
		)
		return Result{}, err
	}

	e.logger.Info("transition committed",
		"id", t.ID,
		"seq", t.Seq,
		"command_id", t.CommandID,
		"actor", t.ActingParty,
		"template", t.Template,
		"choice", t.Choice,
	)

	return Result{
		TransitionID: t.ID,
		Seq:          t.Seq,
		CommandID:    t.CommandID,
		Produced:     t.ProducedIDs(),
		Value:        t.Result,
	}, nil
}

func (e *Engine) commandID(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return e.ids.Generate()
}

// Run delivers committed transitions to observers until ctx is cancelled
// or Close is called and every queued transition has been delivered.
// Observer failures are logged and do not stop delivery.
func (e *Engine) Run(ctx context.Context) error {
	for {
		t, ok, drained := e.events.TryDequeue()
		if drained {
			return nil
		}
		if ok {
			e.deliver(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.events.Wait():
		}
	}
}

// Close stops accepting transitions for observers. Run returns once the
// queue is drained.
func (e *Engine) Close() {
	e.events.Close()
}

// Pending returns how many committed transitions await delivery.
func (e *Engine) Pending() int {
	return e.events.Len()
}

func (e *Engine) deliver(ctx context.Context, t ir.Transition) {
	for _, o := range e.observers {
		start := time.Now()
		if err := o.Observe(ctx, t); err != nil {
			oe := &ObserverError{Observer: o.Name(), Seq: t.Seq, Err: err}
			e.logger.Warn("observer failed",
				"observer", o.Name(),
				"seq", t.Seq,
				"error", oe,
			)
			continue
		}
		e.logger.Debug("observer delivered",
			"observer", o.Name(),
			"seq", t.Seq,
			"elapsed", time.Since(start),
		)
	}
}

// authorizing orders the target first, then references by argument name.
func authorizing(target ir.Contract, refs map[string]ir.Contract) []ir.Contract {
	out := []ir.Contract{target}
	for _, arg := range sortedKeys(refs) {
		out = append(out, refs[arg])
	}
	return out
}

// consumedIDs lists what an exercise archives: the target unless the choice
// is non-consuming, then references by argument name.
func consumedIDs(target ir.Contract, refs map[string]ir.Contract, nonConsuming bool) []ir.ContractID {
	out := make([]ir.ContractID, 0, len(refs)+1)
	if !nonConsuming {
		out = append(out, target.ID)
	}
	for _, arg := range sortedKeys(refs) {
		out = append(out, refs[arg].ID)
	}
	return out
}

func cloneRefs(refs map[string]ir.Contract) map[string]ir.Contract {
	if refs == nil {
		return nil
	}
	out := make(map[string]ir.Contract, len(refs))
	for k, c := range refs {
		out[k] = c.Clone()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
