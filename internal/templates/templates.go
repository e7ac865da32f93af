// Package templates ships the allowance and fixed-rate-bond template
// families: their CUE declarations and the pure Go transition functions
// bound to them.
package templates

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/roach88/ledgerd/internal/compiler"
	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/registry"
)

//go:embed catalogue/*.cue
var catalogue embed.FS

// Catalogue returns the embedded CUE declarations.
func Catalogue() fs.FS {
	sub, err := fs.Sub(catalogue, "catalogue")
	if err != nil {
		panic(err)
	}
	return sub
}

// Specs compiles the embedded catalogue.
func Specs() ([]ir.TemplateSpec, error) {
	specs, err := compiler.LoadFS(Catalogue())
	if err != nil {
		return nil, fmt.Errorf("compile embedded catalogue: %w", err)
	}
	return specs, nil
}

// Bindings returns the Go implementations of every shipped template.
func Bindings() []registry.Binding {
	return append(allowanceBindings(), bondBindings()...)
}

// BindingsFor returns the shipped bindings whose template is declared in specs.
// Lets an operator catalogue declare a subset of the shipped templates.
func BindingsFor(specs []ir.TemplateSpec) []registry.Binding {
	declared := make(map[string]bool, len(specs))
	for _, s := range specs {
		declared[s.Name] = true
	}
	var out []registry.Binding
	for _, b := range Bindings() {
		if declared[b.Template] {
			out = append(out, b)
		}
	}
	return out
}

// NewRegistry builds a registry from specs, or from the embedded catalogue
// when specs is empty.
func NewRegistry(specs ...ir.TemplateSpec) (*registry.Registry, error) {
	if len(specs) == 0 {
		var err error
		if specs, err = Specs(); err != nil {
			return nil, err
		}
	}
	return registry.New(specs, BindingsFor(specs)...)
}

// fieldReader decodes typed fields from a record with a sticky error, so a
// whole struct can be read before checking once.
type fieldReader struct {
	r   ir.Record
	err error
}

func (fr *fieldReader) money(key string) ir.Money {
	if fr.err != nil {
		return ir.Money{}
	}
	m, err := ir.MoneyField(fr.r, key)
	fr.err = err
	return m
}

func (fr *fieldReader) date(key string) ir.Date {
	if fr.err != nil {
		return ir.Date{}
	}
	d, err := ir.DateField(fr.r, key)
	fr.err = err
	return d
}

func (fr *fieldReader) party(key string) ir.Party {
	return ir.Party(fr.text(key))
}

func (fr *fieldReader) text(key string) string {
	if fr.err != nil {
		return ""
	}
	s, ok := fr.r[key].(ir.Text)
	if !ok {
		fr.err = ir.Invalid(ir.ReasonSchemaViolation, "field %q must be text", key)
	}
	return string(s)
}

func (fr *fieldReader) integer(key string) int64 {
	if fr.err != nil {
		return 0
	}
	n, ok := fr.r[key].(ir.Int)
	if !ok {
		fr.err = ir.Invalid(ir.ReasonSchemaViolation, "field %q must be an integer", key)
	}
	return int64(n)
}

func requirePositive(m ir.Money, field string) error {
	if !m.IsPositive() {
		return ir.Invalid(ir.ReasonNonPositiveAmount, "%s must be positive", field)
	}
	return nil
}

func requireNonNegative(m ir.Money, field string) error {
	if m.Sign() < 0 {
		return ir.Invalid(ir.ReasonPrecondition, "%s must not be negative", field)
	}
	return nil
}
