package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offerFields = []FieldSpec{
	{Name: "buyer", Type: TypeParty},
	{Name: "price", Type: TypeMoney},
	{Name: "bondData", Type: TypeRecord, Fields: []FieldSpec{
		{Name: "isin", Type: TypeText},
		{Name: "maturityDate", Type: TypeDate},
	}},
}

func validOffer() Record {
	return Record{
		"buyer":    Text("Bob"),
		"price":    Text("99.50"),
		"bondData": Record{"isin": Text("US0000001"), "maturityDate": Text("2030-01-01")},
	}
}

func TestValidateRecordAccepts(t *testing.T) {
	require.NoError(t, ValidateRecord(offerFields, validOffer()))
}

func TestValidateRecordRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(Record)
		message string
	}{
		{"missing field", func(r Record) { delete(r, "price") }, `missing field "price"`},
		{"unknown field", func(r Record) { r["note"] = Text("x") }, `unknown field "note"`},
		{"float-like money", func(r Record) { r["price"] = Int(99) }, `field "price" must be a Money`},
		{"bad decimal", func(r Record) { r["price"] = Text("ninety") }, `field "price" must be a Money`},
		{"empty party", func(r Record) { r["buyer"] = Text(" ") }, `field "buyer" must be a Party`},
		{"nested bad date", func(r Record) { r.Record("bondData")["maturityDate"] = Text("2030-13-01") }, `field "bondData.maturityDate" must be a Date`},
		{"nested unknown", func(r Record) { r.Record("bondData")["coupon"] = Text("1") }, `unknown field "bondData.coupon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validOffer()
			tt.mutate(r)
			err := ValidateRecord(offerFields, r)
			require.Error(t, err)
			assert.Equal(t, ErrInvalidArgument, KindOf(err))
			assert.Equal(t, ReasonSchemaViolation, ReasonOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateRecordNeverEchoesValues(t *testing.T) {
	r := validOffer()
	r["price"] = Text("secret-price-value")
	err := ValidateRecord(offerFields, r)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-price-value")
}

func TestValidateContractID(t *testing.T) {
	fields := []FieldSpec{{Name: "cid", Type: TypeContractID}}
	require.NoError(t, ValidateRecord(fields, Record{"cid": Int(3)}))
	require.Error(t, ValidateRecord(fields, Record{"cid": Int(0)}))
	require.Error(t, ValidateRecord(fields, Record{"cid": Text("3")}))
}

func TestContractVisibility(t *testing.T) {
	c := Contract{Signatories: []Party{"Parent"}, Observers: []Party{"Emma"}}
	assert.True(t, c.VisibleTo("Parent"))
	assert.True(t, c.VisibleTo("Emma"))
	assert.False(t, c.VisibleTo("Mallory"))
	assert.True(t, c.IsSignatory("Parent"))
	assert.False(t, c.IsSignatory("Emma"))
	assert.Equal(t, []Party{"Emma", "Parent"}, c.Stakeholders())
}

func TestNormalizeParties(t *testing.T) {
	assert.Equal(t, []Party{"A", "B"}, NormalizeParties([]Party{"B", "", "A", "B"}))
}
