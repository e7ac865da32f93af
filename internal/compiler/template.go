package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ledgerd/internal/ir"
)

// CompileTemplate parses a CUE value into a TemplateSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the template struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`template: Iou: { ... }`)
//	spec, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Iou")))
func CompileTemplate(v cue.Value) (*ir.TemplateSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.TemplateSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].Unquoted()
	}

	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		desc, err := d.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Description = desc
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}
	fields, err := parseFields(fieldsVal, "fields")
	if err != nil {
		return nil, err
	}
	spec.Fields = fields

	spec.Signatories, err = parseStringList(v, "signatories")
	if err != nil {
		return nil, err
	}
	if len(spec.Signatories) == 0 {
		return nil, &CompileError{
			Field:   "signatories",
			Message: "at least one signatory is required",
			Pos:     v.Pos(),
		}
	}

	spec.Observers, err = parseStringList(v, "observers")
	if err != nil {
		return nil, err
	}

	spec.Choices, err = parseChoices(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// CompileCatalogue compiles every entry under the top-level `template` struct,
// in declaration order. All compile errors are collected.
func CompileCatalogue(v cue.Value) ([]ir.TemplateSpec, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	root := v.LookupPath(cue.ParsePath("template"))
	if !root.Exists() {
		return nil, nil
	}

	iter, err := root.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var specs []ir.TemplateSpec
	var errs []error
	for iter.Next() {
		spec, err := CompileTemplate(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", iter.Selector().Unquoted(), err))
			continue
		}
		specs = append(specs, *spec)
	}
	return specs, errs
}

// parseFields reads a struct of `name: "Type"` entries. A nested struct
// declares a Record field.
func parseFields(v cue.Value, path string) ([]ir.FieldSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []ir.FieldSpec
	for iter.Next() {
		name := iter.Selector().Unquoted()
		fv := iter.Value()
		fieldPath := path + "." + name

		if fv.IncompleteKind() == cue.StructKind {
			nested, err := parseFields(fv, fieldPath)
			if err != nil {
				return nil, err
			}
			fields = append(fields, ir.FieldSpec{Name: name, Type: ir.TypeRecord, Fields: nested})
			continue
		}

		typeName, err := extractTypeName(fv, fieldPath)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ir.FieldSpec{Name: name, Type: typeName})
	}
	return fields, nil
}

// extractTypeName reads a field type string. Floats are forbidden: numeric
// CUE kinds are reported with a hint to use Money or Int.
func extractTypeName(v cue.Value, path string) (ir.FieldType, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return "", &CompileError{
				Field:   path,
				Message: "field type must be a concrete type name",
				Pos:     v.Pos(),
			}
		}
		t := ir.FieldType(s)
		if !ir.ValidFieldTypes[t] {
			return "", &CompileError{
				Field:   path,
				Message: fmt.Sprintf("unknown field type %q", s),
				Pos:     v.Pos(),
			}
		}
		return t, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   path,
			Message: "float types are forbidden - use \"Money\" for amounts",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseStringList(v cue.Value, name string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(name))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// parseChoices extracts choice declarations.
func parseChoices(v cue.Value) ([]ir.ChoiceSpec, error) {
	choiceVal := v.LookupPath(cue.ParsePath("choice"))
	if !choiceVal.Exists() {
		return nil, nil
	}

	iter, err := choiceVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var choices []ir.ChoiceSpec
	for iter.Next() {
		name := iter.Selector().Unquoted()
		cv := iter.Value()
		path := "choice." + name

		choice := ir.ChoiceSpec{Name: name}

		ctrl := cv.LookupPath(cue.ParsePath("controller"))
		if !ctrl.Exists() {
			return nil, &CompileError{
				Field:   path + ".controller",
				Message: "choice controller is required",
				Pos:     cv.Pos(),
			}
		}
		if choice.Controller, err = ctrl.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if nc := cv.LookupPath(cue.ParsePath("nonconsuming")); nc.Exists() {
			if choice.NonConsuming, err = nc.Bool(); err != nil {
				return nil, &CompileError{
					Field:   path + ".nonconsuming",
					Message: "nonconsuming must be a bool",
					Pos:     nc.Pos(),
				}
			}
		}

		if args := cv.LookupPath(cue.ParsePath("args")); args.Exists() {
			if choice.Args, err = parseFields(args, path+".args"); err != nil {
				return nil, err
			}
		}

		if consumes := cv.LookupPath(cue.ParsePath("consumes")); consumes.Exists() {
			if choice.Consumes, err = parseConsumes(consumes); err != nil {
				return nil, err
			}
		}

		choices = append(choices, choice)
	}
	return choices, nil
}

func parseConsumes(v cue.Value) (map[string]ir.ContractRef, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]ir.ContractRef)
	for iter.Next() {
		var ref ir.ContractRef
		if err := iter.Value().Decode(&ref); err != nil {
			return nil, formatCUEError(err)
		}
		out[iter.Selector().Unquoted()] = ref
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// sortedConsumes returns consumed argument names in stable order.
func sortedConsumes(c ir.ChoiceSpec) []string {
	names := make([]string, 0, len(c.Consumes))
	for k := range c.Consumes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
