// Package authz decides whether a party may perform a transition.
//
// Three rules apply:
//   - a create is authorized by a signatory of the created contract
//   - an exercise is authorized by the controller of the choice, and by the
//     declared controller of every contract the choice additionally consumes
//   - every signatory of a produced contract is the actor or a signatory of
//     the exercised contract or of a consumed contract
//
// Every check is a pure function of its inputs. Errors are Unauthorized and
// name contracts and choices, never parties or payload values.
package authz

import (
	"slices"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/registry"
)

// AuthorizeCreate requires actor to be a signatory of the contract the
// payload describes.
func AuthorizeCreate(actor ir.Party, t *registry.Template, payload ir.Record) error {
	signatories, _ := t.Parties(payload)
	if actor == "" || !slices.Contains(signatories, actor) {
		return ir.Errorf(ir.ErrUnauthorized, "submitter is not a signatory of the new contract").
			OnChoice(t.Name(), "")
	}
	return nil
}

// AuthorizeExercise requires actor to be the choice's controller on target
// and the declared controller of every referenced contract.
func AuthorizeExercise(actor ir.Party, c *registry.Choice, target ir.Contract, refs map[string]ir.Contract) error {
	if err := AuthorizeController(actor, c, target); err != nil {
		return err
	}
	return AuthorizeRefs(actor, c, refs)
}

// AuthorizeController requires actor to be the choice's controller on target.
// It depends on nothing but the target, so it runs before any argument is
// looked at.
func AuthorizeController(actor ir.Party, c *registry.Choice, target ir.Contract) error {
	if actor == "" || c.Controller(target.Payload) != actor {
		return ir.Errorf(ir.ErrUnauthorized, "submitter is not the controller of the choice").
			OnContract(target.ID).OnChoice(c.Template.Name(), c.Name())
	}
	return nil
}

// AuthorizeRefs requires actor to be the declared controller of every
// contract the choice consumes through its arguments.
func AuthorizeRefs(actor ir.Party, c *registry.Choice, refs map[string]ir.Contract) error {
	for _, arg := range sortedArgs(c.Spec.Consumes) {
		ref, ok := refs[arg]
		if !ok {
			return ir.Invalid(ir.ReasonSchemaViolation, "argument %q names no contract", arg).
				OnChoice(c.Template.Name(), c.Name())
		}
		field := c.Spec.Consumes[arg].Controller
		if ir.Party(ref.Payload.Text(field)) != actor {
			return ir.Errorf(ir.ErrUnauthorized, "submitter does not control the contract passed as %q", arg).
				OnContract(ref.ID).OnChoice(c.Template.Name(), c.Name())
		}
	}
	return nil
}

// AuthorizeProduced requires every signatory of every produced contract to
// be actor or a signatory of one of the authorizing contracts: the exercised
// contract and everything the transition consumes. Nobody can be made a
// signatory without having consented.
func AuthorizeProduced(actor ir.Party, authorizing []ir.Contract, produced []ledger.Draft) error {
	authorizers := map[ir.Party]bool{actor: true}
	for _, c := range authorizing {
		for _, p := range c.Signatories {
			authorizers[p] = true
		}
	}

	for i, d := range produced {
		for _, p := range d.Signatories {
			if !authorizers[p] {
				return ir.Errorf(ir.ErrUnauthorized, "produced contract %d of template %s has a signatory who did not authorize it", i+1, d.Template)
			}
		}
	}
	return nil
}

// Recheck builds the ledger check that re-runs exercise authorization
// against the live records of the exercised and consumed contracts at
// commit time. refs maps consumed argument names to contract ids.
func Recheck(actor ir.Party, c *registry.Choice, target ir.ContractID, refs map[string]ir.ContractID, produced []ledger.Draft) ledger.CheckFunc {
	return func(live map[ir.ContractID]ir.Contract) error {
		self, ok := live[target]
		if !ok {
			return ir.Errorf(ir.ErrConflict, "exercised contract is not live").OnContract(target)
		}
		liveRefs := make(map[string]ir.Contract, len(refs))
		for arg, id := range refs {
			ref, ok := live[id]
			if !ok {
				return ir.Errorf(ir.ErrConflict, "referenced contract is not among the consumed contracts").OnContract(id)
			}
			liveRefs[arg] = ref
		}
		if err := AuthorizeExercise(actor, c, self, liveRefs); err != nil {
			return err
		}

		authorizing := make([]ir.Contract, 0, len(live))
		for _, id := range sortedIDs(live) {
			authorizing = append(authorizing, live[id])
		}
		return AuthorizeProduced(actor, authorizing, produced)
	}
}

func sortedArgs(m map[string]ir.ContractRef) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func sortedIDs(m map[ir.ContractID]ir.Contract) []ir.ContractID {
	out := make([]ir.ContractID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
