package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
)

const iouSource = `
template: Iou: {
	description: "A simple promise to pay"
	signatories: ["issuer"]
	observers: ["owner"]
	fields: {
		issuer: "Party"
		owner:  "Party"
		amount: "Money"
		due:    "Date"
		terms: {
			note:    "Text"
			partial: "Bool"
		}
	}
	choice: Settle: {
		controller: "issuer"
	}
	choice: Transfer: {
		controller: "owner"
		args: newOwner: "Party"
	}
	choice: Net: {
		controller: "owner"
		args: otherCid: "ContractId"
		consumes: otherCid: {template: "Iou", controller: "owner"}
	}
}
`

func TestCompileTemplateBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(iouSource)
	require.NoError(t, v.Err())

	spec, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Iou")))
	require.NoError(t, err)

	assert.Equal(t, "Iou", spec.Name)
	assert.Equal(t, "A simple promise to pay", spec.Description)
	assert.Equal(t, []string{"issuer"}, spec.Signatories)
	assert.Equal(t, []string{"owner"}, spec.Observers)

	require.Len(t, spec.Fields, 5)
	assert.Equal(t, ir.FieldSpec{Name: "issuer", Type: ir.TypeParty}, spec.Fields[0])
	assert.Equal(t, ir.TypeMoney, spec.Fields[2].Type)
	assert.Equal(t, ir.TypeRecord, spec.Fields[4].Type)
	assert.Equal(t, []ir.FieldSpec{{Name: "note", Type: ir.TypeText}, {Name: "partial", Type: ir.TypeBool}}, spec.Fields[4].Fields)

	require.Len(t, spec.Choices, 3)
	assert.Equal(t, "Settle", spec.Choices[0].Name)
	assert.Empty(t, spec.Choices[0].Args)
	assert.Equal(t, []ir.FieldSpec{{Name: "newOwner", Type: ir.TypeParty}}, spec.Choices[1].Args)
	assert.Equal(t, map[string]ir.ContractRef{"otherCid": {Template: "Iou", Controller: "owner"}}, spec.Choices[2].Consumes)

	assert.Empty(t, Validate(spec))
}

func TestCompileTemplateMissingFields(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`template: Bad: { signatories: ["x"] }`)
	require.NoError(t, v.Err())

	_, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields are required")
}

func TestCompileTemplateMissingSignatories(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`template: Bad: { fields: { owner: "Party" } }`)
	require.NoError(t, v.Err())

	_, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signatory")
}

func TestCompileTemplateRejectsFloat(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`template: Bad: { signatories: ["o"], fields: { o: "Party", rate: float } }`)
	require.NoError(t, v.Err())

	_, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float types are forbidden")

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fields.rate", ce.Field)
}

func TestCompileTemplateUnknownType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`template: Bad: { signatories: ["o"], fields: { o: "Party", n: "Decimal" } }`)
	require.NoError(t, v.Err())

	_, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field type "Decimal"`)
}

func TestCompileTemplateMissingController(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`template: Bad: { signatories: ["o"], fields: { o: "Party" }, choice: Go: { args: {} } }`)
	require.NoError(t, v.Err())

	_, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choice.Go.controller")
}

func TestCompileTemplateNonConsuming(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`template: Acct: {
	signatories: ["o"]
	fields: { o: "Party" }
	choice: Ping: { controller: "o", nonconsuming: true }
	choice: Close: { controller: "o" }
}`)
	require.NoError(t, v.Err())

	spec, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Acct")))
	require.NoError(t, err)
	require.Len(t, spec.Choices, 2)
	assert.True(t, spec.Choices[0].NonConsuming)
	assert.False(t, spec.Choices[1].NonConsuming)

	consuming := *spec
	consuming.Choices = []ir.ChoiceSpec{spec.Choices[0], spec.Choices[1]}
	consuming.Choices[0].NonConsuming = false
	h1, err := ir.CatalogueHash([]ir.TemplateSpec{*spec})
	require.NoError(t, err)
	h2, err := ir.CatalogueHash([]ir.TemplateSpec{consuming})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCompileTemplateNonConsumingNotBool(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`template: Bad: { signatories: ["o"], fields: { o: "Party" }, choice: Go: { controller: "o", nonconsuming: "yes" } }`)
	require.NoError(t, v.Err())

	_, err := CompileTemplate(v.LookupPath(cue.ParsePath("template.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choice.Go.nonconsuming")
}

func TestCompileCatalogueCollectsErrors(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
template: Good: { signatories: ["o"], fields: { o: "Party" } }
template: Bad1: { signatories: ["o"] }
template: Bad2: { fields: { o: "Party" } }
`)
	require.NoError(t, v.Err())

	specs, errs := CompileCatalogue(v)
	require.Len(t, specs, 1)
	assert.Equal(t, "Good", specs[0].Name)
	assert.Len(t, errs, 2)
}

func TestCompileCatalogueEmpty(t *testing.T) {
	ctx := cuecontext.New()
	specs, errs := CompileCatalogue(ctx.CompileString(`other: 1`))
	assert.Empty(t, specs)
	assert.Empty(t, errs)
}
