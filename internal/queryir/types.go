package queryir

import "github.com/roach88/ledgerd/internal/ir"

// Select asks for the active contracts of one template.
//
// Semantics:
//
//	active contracts WHERE template = <Template>
//	                   AND <Party> ∈ signatories ∪ observers
//	                   AND <Filter>
//	ORDER BY id
//
// An empty Party disables the visibility restriction. Only operator
// tooling reading its own journal does that; the query service always
// sets it.
type Select struct {
	Template string
	Party    ir.Party
	Filter   Predicate
}

// Predicate is a filter condition over a contract.
//
// Sealed: only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches contracts whose payload field equals a literal.
//
// Field is a dot-separated path into the payload ("bondData.isin").
// A missing field never matches.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// Stakeholder matches contracts on which Party is a signatory or observer.
// Unlike Select.Party it does not restrict what the caller may see; it lets
// an operator ask "contracts involving X".
type Stakeholder struct {
	Party ir.Party
}

func (Stakeholder) predicateNode() {}

// And is a conjunction. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Expr is a CEL boolean expression over the contract. The expression sees
// `payload` (the payload as a map), `id` (int), `template` (string),
// `signatories` and `observers` (lists of strings).
//
// Example:
//
//	Expr{Source: `payload.child == "emma" && payload.currency == "USD"`}
//
// Not portable: evaluated in memory only.
type Expr struct {
	Source string
}

func (Expr) predicateNode() {}

// AllOf builds an And, dropping nil predicates. Returns nil when nothing
// remains, and the single predicate unwrapped when only one does.
func AllOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}
