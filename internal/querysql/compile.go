// Package querysql compiles queryir selections to parameterized SQLite
// queries over the journal's contracts table.
//
// Every query orders by contract id, and every literal travels as a bound
// parameter; nothing from a filter is interpolated into SQL text.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/queryir"
)

// ContractColumns is the column list every compiled query selects, in the
// order store.scanContract expects.
const ContractColumns = "c.id, c.template, c.payload, c.signatories, c.observers, c.status, t.id, c.created_seq"

// SQLCompiler compiles queryir to SQL for SQLite.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a selection to parameterized SQL returning the active
// contracts it matches. Returns (sql, params, error).
func (c *SQLCompiler) Compile(sel queryir.Select) (string, []any, error) {
	if sel.Template == "" {
		return "", nil, fmt.Errorf("cannot compile query without template")
	}

	where := []string{"c.status = 'active'", "c.template = ?"}
	params := []any{sel.Template}

	if sel.Party != "" {
		frag, p := stakeholderSQL(sel.Party)
		where = append(where, frag)
		params = append(params, p...)
	}

	if sel.Filter != nil {
		frag, p, err := c.compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = append(where, frag)
		params = append(params, p...)
	}

	sql := fmt.Sprintf("SELECT %s FROM contracts c JOIN transitions t ON t.seq = c.created_seq WHERE %s ORDER BY %s",
		ContractColumns,
		strings.Join(where, " AND "),
		stableOrderKey(),
	)
	return sql, params, nil
}

// stableOrderKey is the ORDER BY every query uses.
func stableOrderKey() string {
	return "c.id ASC"
}

// compilePredicate compiles a predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileEquals(pred)
	case queryir.Stakeholder:
		frag, params := stakeholderSQL(pred.Party)
		return frag, params, nil
	case queryir.And:
		return c.compileAnd(pred)
	case queryir.Expr:
		return "", nil, fmt.Errorf("CEL expression %q is not supported by the SQL backend", pred.Source)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles to json_extract(c.payload, ?) = ?. Both the JSON
// path and the value are parameters.
func compileEquals(eq queryir.Equals) (string, []any, error) {
	if eq.Field == "" {
		return "", nil, fmt.Errorf("equals with empty field path")
	}
	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", eq.Field, err)
	}
	return "json_extract(c.payload, ?) = ?", []any{JSONPath(eq.Field), param}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		frag, p, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

func stakeholderSQL(party ir.Party) (string, []any) {
	return "EXISTS (SELECT 1 FROM contract_parties p WHERE p.contract_id = c.id AND p.party = ?)", []any{string(party)}
}

// JSONPath converts a dotted field path to a SQLite JSON path with every
// key quoted, so field names never need escaping rules of their own.
func JSONPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, key := range strings.Split(field, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(key, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}

// valueToParam converts a literal to a SQL parameter matching what
// json_extract returns: text, integer, and 1/0 for booleans.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Text:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case nil, ir.Null:
		return nil, fmt.Errorf("null cannot be compared")
	case ir.List, ir.Record:
		return nil, fmt.Errorf("%T cannot be used as SQL parameter directly", v)
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
