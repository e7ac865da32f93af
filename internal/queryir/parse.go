package queryir

import (
	"strconv"
	"strings"

	"github.com/roach88/ledgerd/internal/ir"
)

// ParseFilter parses the command-line filter form
//
//	field=value[,field=value...]
//
// into an And of Equals. Values are typed from the template's field
// schema: Int and ContractId fields parse as integers, Bool as booleans,
// everything else stays text. An empty string yields a nil predicate.
func ParseFilter(s string, fields []ir.FieldSpec) (Predicate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var preds []Predicate
	for _, clause := range strings.Split(s, ",") {
		field, raw, ok := strings.Cut(clause, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, ir.Invalid(ir.ReasonSchemaViolation, "filter clause %q is not field=value", clause)
		}
		spec, known := ResolveField(fields, field)
		if !known {
			return nil, ir.Invalid(ir.ReasonSchemaViolation, "filter names unknown field %q", field)
		}
		v, err := typedLiteral(spec, strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		preds = append(preds, Equals{Field: field, Value: v})
	}
	return AllOf(preds...), nil
}

func typedLiteral(spec ir.FieldSpec, raw string) (ir.Value, error) {
	switch spec.Type {
	case ir.TypeInt, ir.TypeContractID:
		n, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
		if err != nil {
			return nil, ir.Invalid(ir.ReasonSchemaViolation, "filter value for %q must be an integer", spec.Name)
		}
		return ir.Int(n), nil
	case ir.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, ir.Invalid(ir.ReasonSchemaViolation, "filter value for %q must be true or false", spec.Name)
		}
		return ir.Bool(b), nil
	case ir.TypeRecord:
		return nil, ir.Invalid(ir.ReasonSchemaViolation, "filter cannot compare record field %q", spec.Name)
	default:
		return ir.Text(raw), nil
	}
}
