package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/registry"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := NewRegistry()
	require.NoError(t, err)
	return reg
}

func apply(t *testing.T, reg *registry.Registry, tmpl, choice string, ctx registry.Context, self, args ir.Record, refs map[string]ir.Contract) (registry.Outcome, error) {
	t.Helper()
	c, err := reg.Choice(tmpl, choice)
	require.NoError(t, err)
	require.NoError(t, c.ValidateArgs(args), "args must match the declared schema")
	out, err := c.Apply(ctx, self, args, refs)
	if err == nil {
		for _, p := range out.Produced {
			produced, rerr := reg.Resolve(p.Template)
			require.NoError(t, rerr)
			require.NoError(t, produced.ValidatePayload(p.Payload), "produced %s must validate", p.Template)
		}
	}
	return out, err
}

func TestEmbeddedCatalogueCompiles(t *testing.T) {
	reg := newRegistry(t)

	names := []string{}
	for _, tmpl := range reg.Templates() {
		names = append(names, tmpl.Name())
	}
	assert.Equal(t, []string{
		"AllowanceAccount", "Bond", "BondIssuanceRequest", "BondTradeOffer",
		"CouponPayment", "Task", "TaskCompletion",
	}, names)
	assert.NotEmpty(t, reg.Hash())
}

func TestBindingsForSubset(t *testing.T) {
	specs, err := Specs()
	require.NoError(t, err)

	var subset []ir.TemplateSpec
	for _, s := range specs {
		if s.Name == AllowanceAccountTemplate {
			subset = append(subset, s)
		}
	}
	reg, err := NewRegistry(subset...)
	require.NoError(t, err)
	require.Len(t, reg.Templates(), 1)

	_, err = reg.Resolve(BondTemplate)
	assert.Equal(t, ir.ErrUnknownTemplate, ir.KindOf(err))
}

func TestControllers(t *testing.T) {
	reg := newRegistry(t)

	tests := []struct {
		template, choice, field string
	}{
		{AllowanceAccountTemplate, "PayWeeklyAllowance", "parent"},
		{AllowanceAccountTemplate, "MakeBonusPayment", "parent"},
		{AllowanceAccountTemplate, "WithdrawMoney", "child"},
		{TaskTemplate, "CompleteTask", "child"},
		{TaskTemplate, "CancelTask", "parent"},
		{TaskCompletionTemplate, "ApproveAndPay", "parent"},
		{BondIssuanceRequestTemplate, "AcceptIssuance", "investor"},
		{BondTemplate, "PayCoupon", "issuer"},
		{BondTemplate, "TransferBond", "investor"},
		{BondTradeOfferTemplate, "AcceptTradeOffer", "seller"},
		{BondTradeOfferTemplate, "WithdrawTradeOffer", "buyer"},
	}
	for _, tt := range tests {
		t.Run(tt.template+"."+tt.choice, func(t *testing.T) {
			c, err := reg.Choice(tt.template, tt.choice)
			require.NoError(t, err)
			assert.Equal(t, tt.field, c.Spec.Controller)
		})
	}
}
