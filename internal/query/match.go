package query

import (
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/queryir"
)

type matcher func(c ir.Contract) bool

func matchAll(ir.Contract) bool { return true }

// compile turns a predicate into a matcher. Expressions are compiled here
// so a bad expression fails the query instead of matching nothing.
func (s *Service) compile(p queryir.Predicate) (matcher, error) {
	switch pred := p.(type) {
	case nil:
		return matchAll, nil

	case queryir.Equals:
		return func(c ir.Contract) bool {
			v, ok := queryir.Lookup(c.Payload, pred.Field)
			return ok && ir.Equal(v, pred.Value)
		}, nil

	case queryir.Stakeholder:
		return func(c ir.Contract) bool {
			return c.VisibleTo(pred.Party)
		}, nil

	case queryir.And:
		subs := make([]matcher, 0, len(pred.Predicates))
		for _, sub := range pred.Predicates {
			m, err := s.compile(sub)
			if err != nil {
				return nil, err
			}
			subs = append(subs, m)
		}
		return func(c ir.Contract) bool {
			for _, m := range subs {
				if !m(c) {
					return false
				}
			}
			return true
		}, nil

	case queryir.Expr:
		prg, err := s.exprs.program(pred.Source)
		if err != nil {
			return nil, err
		}
		return func(c ir.Contract) bool {
			ok, err := prg.matches(c)
			if err != nil {
				s.logger.Debug("filter expression failed",
					"contract", c.ID,
					"error", err,
				)
				return false
			}
			return ok
		}, nil

	default:
		return nil, ir.Invalid(ir.ReasonSchemaViolation, "unsupported filter %T", p)
	}
}
