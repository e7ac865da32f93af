package query

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/roach88/ledgerd/internal/ir"
)

// exprCostLimit bounds the work a single filter evaluation may do.
const exprCostLimit = 10000

// exprCache compiles CEL filter expressions once per source text.
type exprCache struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]*program
}

func newExprCache() (*exprCache, error) {
	env, err := cel.NewEnv(
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("id", cel.IntType),
		cel.Variable("template", cel.StringType),
		cel.Variable("signatories", cel.ListType(cel.StringType)),
		cel.Variable("observers", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &exprCache{env: env, programs: make(map[string]*program)}, nil
}

type program struct {
	source string
	prg    cel.Program
}

// program returns the compiled program for source. Compile failures are
// SchemaViolation errors.
func (c *exprCache) program(source string) (*program, error) {
	c.mu.RLock()
	p, hit := c.programs[source]
	c.mu.RUnlock()
	if hit {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, hit := c.programs[source]; hit {
		return p, nil
	}

	ast, issues := c.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, ir.Invalid(ir.ReasonSchemaViolation, "filter expression: %v", issues.Err())
	}
	prg, err := c.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(exprCostLimit),
	)
	if err != nil {
		return nil, ir.Invalid(ir.ReasonSchemaViolation, "filter expression: %v", err)
	}

	p = &program{source: source, prg: prg}
	c.programs[source] = p
	return p, nil
}

func (c *exprCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// matches evaluates the program against c. A non-boolean result is an error.
func (p *program) matches(c ir.Contract) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"payload":     ir.ToGo(c.Payload),
		"id":          int64(c.ID),
		"template":    c.Template,
		"signatories": partyStrings(c.Signatories),
		"observers":   partyStrings(c.Observers),
	})
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.source, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("eval %q: result is %s, not bool", p.source, out.Type().TypeName())
	}
	return ok, nil
}

func partyStrings(parties []ir.Party) []string {
	out := make([]string, len(parties))
	for i, p := range parties {
		out[i] = string(p)
	}
	return out
}
