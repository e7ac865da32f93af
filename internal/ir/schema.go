package ir

import "strings"

// ValidateRecord checks r against a field schema: every declared field present,
// no undeclared fields, and each value well-formed for its type.
// Failures are InvalidArgument/SchemaViolation errors naming the field path only.
func ValidateRecord(fields []FieldSpec, r Record) error {
	return validateRecord("", fields, r)
}

func validateRecord(prefix string, fields []FieldSpec, r Record) error {
	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
		path := prefix + f.Name
		v, ok := r[f.Name]
		if !ok {
			return Invalid(ReasonSchemaViolation, "missing field %q", path)
		}
		if err := validateValue(path, f, v); err != nil {
			return err
		}
	}
	for _, k := range r.SortedKeys() {
		if !declared[k] {
			return Invalid(ReasonSchemaViolation, "unknown field %q", prefix+k)
		}
	}
	return nil
}

func validateValue(path string, f FieldSpec, v Value) error {
	switch f.Type {
	case TypeText:
		if _, ok := v.(Text); !ok {
			return typeError(path, f.Type)
		}
	case TypeParty:
		s, ok := v.(Text)
		if !ok || strings.TrimSpace(string(s)) == "" {
			return typeError(path, f.Type)
		}
	case TypeMoney:
		s, ok := v.(Text)
		if !ok {
			return typeError(path, f.Type)
		}
		if _, err := ParseMoney(string(s)); err != nil {
			return typeError(path, f.Type)
		}
	case TypeDate:
		s, ok := v.(Text)
		if !ok {
			return typeError(path, f.Type)
		}
		if _, err := ParseDate(string(s)); err != nil {
			return typeError(path, f.Type)
		}
	case TypeInt:
		if _, ok := v.(Int); !ok {
			return typeError(path, f.Type)
		}
	case TypeBool:
		if _, ok := v.(Bool); !ok {
			return typeError(path, f.Type)
		}
	case TypeContractID:
		n, ok := v.(Int)
		if !ok || n <= 0 {
			return typeError(path, f.Type)
		}
	case TypeRecord:
		rec, ok := v.(Record)
		if !ok {
			return typeError(path, f.Type)
		}
		return validateRecord(path+".", f.Fields, rec)
	default:
		return Invalid(ReasonSchemaViolation, "field %q has unsupported type %q", path, f.Type)
	}
	return nil
}

func typeError(path string, t FieldType) error {
	return Invalid(ReasonSchemaViolation, "field %q must be a %s", path, t)
}
