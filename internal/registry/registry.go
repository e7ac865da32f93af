// Package registry binds compiled template declarations to their Go
// implementations and resolves templates and choices by name.
//
// A Registry is built once from a catalogue and is read-only afterwards,
// so it is safe for concurrent use without locking.
package registry

import (
	"cmp"
	"slices"
	"sort"
	"time"

	"github.com/roach88/ledgerd/internal/ir"
)

// Context is the deterministic input a transition function sees besides
// payload and arguments. Everything here is recorded in the Transition,
// so replay reproduces the same output.
type Context struct {
	Actor      ir.Party
	ContractID ir.ContractID
	LedgerTime time.Time
}

// Today is the ledger date.
func (c Context) Today() ir.Date {
	return ir.DateOf(c.LedgerTime)
}

// Output is a contract a transition function asks to create.
type Output struct {
	Template string
	Payload  ir.Record
}

// Outcome is the result of a transition function.
type Outcome struct {
	Produced []Output
	Result   ir.Record
}

// ChoiceFunc is a pure transition function: no I/O, deterministic given
// its inputs. refs holds the live contracts named by the choice's consumed
// ContractId arguments, keyed by argument name.
type ChoiceFunc func(ctx Context, self ir.Record, args ir.Record, refs map[string]ir.Contract) (Outcome, error)

// EnsureFunc checks create-time invariants beyond the field schema.
type EnsureFunc func(payload ir.Record) error

// KeyFunc derives a contract key from a payload.
type KeyFunc func(payload ir.Record) string

// Binding supplies the Go side of a template.
type Binding struct {
	Template string
	Ensure   EnsureFunc
	Choices  map[string]ChoiceFunc

	// Key, when set, names a key no two active contracts of the template
	// share. Producing a duplicate fails InvalidArgument with KeyReason.
	Key       KeyFunc
	KeyReason ir.Reason
}

// Registry resolves templates and choices by name.
type Registry struct {
	templates map[string]*Template
	names     []string
	hash      string
}

// Template is a resolved template: declaration plus bound behaviour.
type Template struct {
	Spec      ir.TemplateSpec
	ensure    EnsureFunc
	key       KeyFunc
	keyReason ir.Reason
	choices   map[string]*Choice
}

// Choice is a resolved choice of a template.
type Choice struct {
	Spec     ir.ChoiceSpec
	Template *Template
	fn       ChoiceFunc
}

// New builds a registry. Registration order is irrelevant. Fails with
// DuplicateTemplate on name collisions, UnknownTemplate for a binding that
// names no declared template, and UnknownChoice when a declared choice has
// no implementation or an implementation names no declared choice.
func New(specs []ir.TemplateSpec, bindings ...Binding) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template, len(specs))}

	for _, spec := range specs {
		if _, dup := r.templates[spec.Name]; dup {
			return nil, ir.Errorf(ir.ErrDuplicateTemplate, "template %q registered twice", spec.Name)
		}
		t := &Template{Spec: spec, choices: make(map[string]*Choice, len(spec.Choices))}
		for _, c := range spec.Choices {
			t.choices[c.Name] = &Choice{Spec: c, Template: t}
		}
		r.templates[spec.Name] = t
		r.names = append(r.names, spec.Name)
	}

	bound := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		t, ok := r.templates[b.Template]
		if !ok {
			return nil, ir.Errorf(ir.ErrUnknownTemplate, "binding for undeclared template %q", b.Template)
		}
		if bound[b.Template] {
			return nil, ir.Errorf(ir.ErrDuplicateTemplate, "template %q bound twice", b.Template)
		}
		bound[b.Template] = true
		t.ensure = b.Ensure
		t.key = b.Key
		t.keyReason = cmp.Or(b.KeyReason, ir.ReasonPrecondition)
		for name, fn := range b.Choices {
			c, ok := t.choices[name]
			if !ok {
				return nil, ir.Errorf(ir.ErrUnknownChoice, "implementation for undeclared choice %q", name).
					OnChoice(b.Template, name)
			}
			c.fn = fn
		}
	}

	for _, name := range r.names {
		for _, c := range r.templates[name].Spec.Choices {
			if r.templates[name].choices[c.Name].fn == nil {
				return nil, ir.Errorf(ir.ErrUnknownChoice, "choice %q has no implementation", c.Name).
					OnChoice(name, c.Name)
			}
		}
	}

	sort.Strings(r.names)

	ordered := make([]ir.TemplateSpec, len(r.names))
	for i, name := range r.names {
		ordered[i] = r.templates[name].Spec
	}
	hash, err := ir.CatalogueHash(ordered)
	if err != nil {
		return nil, err
	}
	r.hash = hash

	return r, nil
}

// Resolve returns the named template or fails UnknownTemplate.
func (r *Registry) Resolve(name string) (*Template, error) {
	t, ok := r.templates[name]
	if !ok {
		return nil, ir.Errorf(ir.ErrUnknownTemplate, "unknown template %q", name)
	}
	return t, nil
}

// Choice returns the named choice or fails UnknownTemplate/UnknownChoice.
func (r *Registry) Choice(template, choice string) (*Choice, error) {
	t, err := r.Resolve(template)
	if err != nil {
		return nil, err
	}
	return t.Choice(choice)
}

// Templates returns all templates sorted by name.
func (r *Registry) Templates() []*Template {
	out := make([]*Template, len(r.names))
	for i, name := range r.names {
		out[i] = r.templates[name]
	}
	return out
}

// Hash fingerprints the declared catalogue.
func (r *Registry) Hash() string {
	return r.hash
}

// Key returns the contract key of a payload of template. ok is false for
// unknown templates and templates without a key.
func (r *Registry) Key(template string, payload ir.Record) (key string, reason ir.Reason, ok bool) {
	t, found := r.templates[template]
	if !found || t.key == nil {
		return "", "", false
	}
	return t.key(payload), t.keyReason, true
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.Spec.Name
}

// Choice returns the named choice or fails UnknownChoice.
func (t *Template) Choice(name string) (*Choice, error) {
	c, ok := t.choices[name]
	if !ok {
		return nil, ir.Errorf(ir.ErrUnknownChoice, "template %s has no choice %q", t.Spec.Name, name).
			OnChoice(t.Spec.Name, name)
	}
	return c, nil
}

// ValidatePayload checks the payload schema, then the template's ensure clause.
func (t *Template) ValidatePayload(payload ir.Record) error {
	if err := ir.ValidateRecord(t.Spec.Fields, payload); err != nil {
		return err
	}
	if t.ensure != nil {
		return t.ensure(payload)
	}
	return nil
}

// Parties resolves the declared signatory and observer fields against a
// payload. Observers never repeat a signatory.
func (t *Template) Parties(payload ir.Record) (signatories, observers []ir.Party) {
	for _, f := range t.Spec.Signatories {
		signatories = append(signatories, ir.Party(payload.Text(f)))
	}
	signatories = ir.NormalizeParties(signatories)

	for _, f := range t.Spec.Observers {
		p := ir.Party(payload.Text(f))
		if !slices.Contains(signatories, p) {
			observers = append(observers, p)
		}
	}
	return signatories, ir.NormalizeParties(observers)
}

// Name returns the choice name.
func (c *Choice) Name() string {
	return c.Spec.Name
}

// Controller returns the party named by the choice's controller field.
func (c *Choice) Controller(payload ir.Record) ir.Party {
	return ir.Party(payload.Text(c.Spec.Controller))
}

// ValidateArgs checks arguments against the declared argument schema.
func (c *Choice) ValidateArgs(args ir.Record) error {
	return ir.ValidateRecord(c.Spec.Args, args)
}

// ConsumedRefs returns the ContractId arguments this choice also consumes,
// keyed by argument name.
func (c *Choice) ConsumedRefs(args ir.Record) map[string]ir.ContractID {
	if len(c.Spec.Consumes) == 0 {
		return nil
	}
	out := make(map[string]ir.ContractID, len(c.Spec.Consumes))
	for name := range c.Spec.Consumes {
		out[name] = ir.ContractID(args.Int(name))
	}
	return out
}

// Apply runs the transition function.
func (c *Choice) Apply(ctx Context, self, args ir.Record, refs map[string]ir.Contract) (Outcome, error) {
	return c.fn(ctx, self, args, refs)
}
