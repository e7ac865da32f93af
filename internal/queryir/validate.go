package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/ledgerd/internal/ir"
)

// ValidationResult reports whether a query stays inside the portable
// fragment. Non-portable queries still run in memory.
type ValidationResult struct {
	IsPortable bool
	Warnings   []string
}

// Validate checks a query against the portable fragment rules:
//  1. no null literals
//  2. no CEL expressions
//  3. every Equals names a field
//
// Validate is a pure function.
func Validate(sel Select) ValidationResult {
	v := &validator{warnings: []string{}}
	if sel.Template == "" {
		v.addWarning("empty template - every query selects exactly one template")
	}
	v.validatePredicate(sel.Filter)

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		if pred.Field == "" {
			v.addWarning("equals with empty field path")
		}
		if _, isNull := pred.Value.(ir.Null); isNull || pred.Value == nil {
			v.addWarning("field %q compared to null - portable fragment requires explicit values", pred.Field)
		}
	case Stakeholder:
		if pred.Party == "" {
			v.addWarning("stakeholder with empty party")
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Expr:
		v.addWarning("CEL expression %q - evaluated in memory only", pred.Source)
	default:
		v.addWarning("unknown predicate type: %T - portability cannot be verified", p)
	}
}

// CheckFields verifies every Equals path names a declared field, so a typo
// in a filter is reported instead of silently matching nothing. Failures
// are InvalidArgument/SchemaViolation.
func CheckFields(p Predicate, fields []ir.FieldSpec) error {
	switch pred := p.(type) {
	case Equals:
		if _, ok := ResolveField(fields, pred.Field); !ok {
			return ir.Invalid(ir.ReasonSchemaViolation, "filter names unknown field %q", pred.Field)
		}
	case And:
		for _, sub := range pred.Predicates {
			if err := CheckFields(sub, fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveField walks a dot-separated path through nested Record fields.
func ResolveField(fields []ir.FieldSpec, path string) (ir.FieldSpec, bool) {
	parts := strings.Split(path, ".")
	for i, name := range parts {
		var found *ir.FieldSpec
		for j := range fields {
			if fields[j].Name == name {
				found = &fields[j]
				break
			}
		}
		if found == nil {
			return ir.FieldSpec{}, false
		}
		if i == len(parts)-1 {
			return *found, true
		}
		if found.Type != ir.TypeRecord {
			return ir.FieldSpec{}, false
		}
		fields = found.Fields
	}
	return ir.FieldSpec{}, false
}

// Lookup reads a dot-separated path from a payload.
func Lookup(payload ir.Record, path string) (ir.Value, bool) {
	cur := payload
	parts := strings.Split(path, ".")
	for i, name := range parts {
		v, ok := cur[name]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(ir.Record)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}
