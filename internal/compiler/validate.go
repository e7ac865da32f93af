package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/ledgerd/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// TemplateSpec errors (E101-E109)
	ErrTemplateNameEmpty   = "E101" // template name is required
	ErrNoSignatories       = "E102" // at least one signatory required
	ErrPartyFieldUndefined = "E103" // signatory/observer/controller names no Party field
	ErrInvalidFieldType    = "E104" // invalid type string
	ErrDuplicateName       = "E105" // duplicate field/choice name
	ErrEmptyRecord         = "E106" // Record field with no nested fields

	// ChoiceSpec errors (E110-E119)
	ErrConsumeArgUndefined = "E110" // consumes names an arg that is not a ContractId
	ErrConsumeTemplate     = "E111" // consumes names an unknown template
	ErrConsumeController   = "E112" // consumes controller is not a Party field of the target

	// Catalogue errors (E120-E129)
	ErrDuplicateTemplate = "E120" // two templates share a name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a single template for internal consistency.
// Returns all errors found (does not fail-fast).
func Validate(spec *ir.TemplateSpec) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "template name is required",
			Code:    ErrTemplateNameEmpty,
		})
	}

	if len(spec.Signatories) == 0 {
		errs = append(errs, ValidationError{
			Field:   "signatories",
			Message: "at least one signatory is required",
			Code:    ErrNoSignatories,
		})
	}

	errs = append(errs, validateFields(spec.Fields, "fields")...)

	for i, s := range spec.Signatories {
		errs = append(errs, checkPartyField(spec.Fields, s, fmt.Sprintf("signatories[%d]", i))...)
	}
	for i, o := range spec.Observers {
		errs = append(errs, checkPartyField(spec.Fields, o, fmt.Sprintf("observers[%d]", i))...)
	}

	seen := make(map[string]bool)
	for i, c := range spec.Choices {
		path := fmt.Sprintf("choices[%d]", i)
		if seen[c.Name] {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: fmt.Sprintf("duplicate choice name: %q", c.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[c.Name] = true

		errs = append(errs, checkPartyField(spec.Fields, c.Controller, path+".controller")...)
		errs = append(errs, validateFields(c.Args, path+".args")...)

		for _, arg := range sortedConsumes(c) {
			a, ok := c.Arg(arg)
			if !ok || a.Type != ir.TypeContractID {
				errs = append(errs, ValidationError{
					Field:   path + ".consumes." + arg,
					Message: fmt.Sprintf("consumed argument %q must be declared as a ContractId arg", arg),
					Code:    ErrConsumeArgUndefined,
				})
			}
		}
	}

	return errs
}

// ValidateCatalogue validates every template plus cross-template references:
// unique names, and consumes entries that point at real templates and Party fields.
func ValidateCatalogue(specs []ir.TemplateSpec) []ValidationError {
	var errs []ValidationError
	byName := make(map[string]*ir.TemplateSpec, len(specs))

	for i := range specs {
		spec := &specs[i]
		for _, e := range Validate(spec) {
			e.Field = spec.Name + "." + e.Field
			errs = append(errs, e)
		}
		if _, dup := byName[spec.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   spec.Name,
				Message: fmt.Sprintf("template %q declared more than once", spec.Name),
				Code:    ErrDuplicateTemplate,
			})
			continue
		}
		byName[spec.Name] = spec
	}

	for _, spec := range specs {
		for _, c := range spec.Choices {
			for _, arg := range sortedConsumes(c) {
				ref := c.Consumes[arg]
				path := fmt.Sprintf("%s.choice.%s.consumes.%s", spec.Name, c.Name, arg)
				target, ok := byName[ref.Template]
				if !ok {
					errs = append(errs, ValidationError{
						Field:   path + ".template",
						Message: fmt.Sprintf("unknown template %q", ref.Template),
						Code:    ErrConsumeTemplate,
					})
					continue
				}
				if f, ok := target.Field(ref.Controller); !ok || f.Type != ir.TypeParty {
					errs = append(errs, ValidationError{
						Field:   path + ".controller",
						Message: fmt.Sprintf("%q is not a Party field of %s", ref.Controller, ref.Template),
						Code:    ErrConsumeController,
					})
				}
			}
		}
	}

	return errs
}

func validateFields(fields []ir.FieldSpec, path string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i, f := range fields {
		fp := fmt.Sprintf("%s[%d]", path, i)
		if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   fp + ".name",
				Message: fmt.Sprintf("duplicate field name: %q", f.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[f.Name] = true

		if !ir.ValidFieldTypes[f.Type] {
			errs = append(errs, ValidationError{
				Field:   fp + ".type",
				Message: fmt.Sprintf("invalid type %q for field %q", f.Type, f.Name),
				Code:    ErrInvalidFieldType,
			})
		}
		if f.Type == ir.TypeRecord {
			if len(f.Fields) == 0 {
				errs = append(errs, ValidationError{
					Field:   fp,
					Message: fmt.Sprintf("record field %q has no fields", f.Name),
					Code:    ErrEmptyRecord,
				})
			}
			errs = append(errs, validateFields(f.Fields, fp+".fields")...)
		}
	}
	return errs
}

func checkPartyField(fields []ir.FieldSpec, name, path string) []ValidationError {
	for _, f := range fields {
		if f.Name == name {
			if f.Type == ir.TypeParty {
				return nil
			}
			break
		}
	}
	return []ValidationError{{
		Field:   path,
		Message: fmt.Sprintf("%q is not a Party field", name),
		Code:    ErrPartyFieldUndefined,
	}}
}
