package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
)

var offerFields = []ir.FieldSpec{
	{Name: "buyer", Type: ir.TypeParty},
	{Name: "seller", Type: ir.TypeParty},
	{Name: "price", Type: ir.TypeMoney},
	{Name: "lots", Type: ir.TypeInt},
	{Name: "firm", Type: ir.TypeBool},
	{Name: "bondData", Type: ir.TypeRecord, Fields: []ir.FieldSpec{
		{Name: "isin", Type: ir.TypeText},
	}},
}

func TestPredicate_Sealed(t *testing.T) {
	preds := []Predicate{Equals{}, Stakeholder{}, And{}, Expr{}}
	for _, p := range preds {
		switch p.(type) {
		case Equals, Stakeholder, And, Expr:
		default:
			t.Fatalf("unexpected predicate %T", p)
		}
	}
}

func TestAllOf(t *testing.T) {
	assert.Nil(t, AllOf())
	assert.Nil(t, AllOf(nil, nil))

	eq := Equals{Field: "seller", Value: ir.Text("alice")}
	assert.Equal(t, eq, AllOf(nil, eq))
	assert.Equal(t, And{Predicates: []Predicate{eq, Stakeholder{Party: "bob"}}}, AllOf(eq, nil, Stakeholder{Party: "bob"}))
}

func TestValidate_Portable(t *testing.T) {
	res := Validate(Select{
		Template: "BondTradeOffer",
		Party:    "alice",
		Filter: And{Predicates: []Predicate{
			Equals{Field: "seller", Value: ir.Text("alice")},
			Stakeholder{Party: "bob"},
		}},
	})
	assert.True(t, res.IsPortable)
	assert.Empty(t, res.Warnings)
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name string
		sel  Select
	}{
		{"no template", Select{}},
		{"null literal", Select{Template: "T", Filter: Equals{Field: "x", Value: ir.Null{}}}},
		{"nil literal", Select{Template: "T", Filter: Equals{Field: "x"}}},
		{"empty path", Select{Template: "T", Filter: Equals{Value: ir.Int(1)}}},
		{"cel", Select{Template: "T", Filter: Expr{Source: "true"}}},
		{"nested cel", Select{Template: "T", Filter: And{Predicates: []Predicate{Expr{Source: "true"}}}}},
		{"empty stakeholder", Select{Template: "T", Filter: Stakeholder{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.sel)
			assert.False(t, res.IsPortable)
			assert.NotEmpty(t, res.Warnings)
		})
	}
}

func TestResolveField(t *testing.T) {
	f, ok := ResolveField(offerFields, "bondData.isin")
	require.True(t, ok)
	assert.Equal(t, ir.TypeText, f.Type)

	_, ok = ResolveField(offerFields, "bondData.coupon")
	assert.False(t, ok)
	_, ok = ResolveField(offerFields, "price.cents")
	assert.False(t, ok)
	_, ok = ResolveField(offerFields, "")
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	payload := ir.NewRecord(
		ir.F("seller", ir.Text("alice")),
		ir.F("bondData", ir.NewRecord(ir.F("isin", ir.Text("US1")))),
	)
	v, ok := Lookup(payload, "bondData.isin")
	require.True(t, ok)
	assert.Equal(t, ir.Text("US1"), v)

	_, ok = Lookup(payload, "seller.name")
	assert.False(t, ok)
	_, ok = Lookup(payload, "buyer")
	assert.False(t, ok)
}

func TestCheckFields(t *testing.T) {
	require.NoError(t, CheckFields(And{Predicates: []Predicate{
		Equals{Field: "bondData.isin", Value: ir.Text("US1")},
		Expr{Source: "payload.nope == 1"},
	}}, offerFields))

	err := CheckFields(Equals{Field: "isin", Value: ir.Text("US1")}, offerFields)
	assert.Equal(t, ir.ReasonSchemaViolation, ir.ReasonOf(err))
}

func TestParseFilter(t *testing.T) {
	p, err := ParseFilter("", offerFields)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = ParseFilter("seller=alice", offerFields)
	require.NoError(t, err)
	assert.Equal(t, Equals{Field: "seller", Value: ir.Text("alice")}, p)

	p, err = ParseFilter(" lots = 3 , firm=true, bondData.isin=US1, price=990.00", offerFields)
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "lots", Value: ir.Int(3)},
		Equals{Field: "firm", Value: ir.Bool(true)},
		Equals{Field: "bondData.isin", Value: ir.Text("US1")},
		Equals{Field: "price", Value: ir.Text("990.00")},
	}}, p)
}

func TestParseFilterErrors(t *testing.T) {
	for _, in := range []string{"seller", "=x", "nope=1", "lots=three", "firm=maybe", "bondData=x"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseFilter(in, offerFields)
			assert.Equal(t, ir.ReasonSchemaViolation, ir.ReasonOf(err))
		})
	}
}
