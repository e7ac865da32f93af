package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/templates"
)

func bondTerms() templates.BondTerms {
	return templates.BondTerms{
		Issuer:          "acme",
		Investor:        "alice",
		ISIN:            "US0000000001",
		Currency:        "USD",
		Denomination:    ir.MustMoney("1000.00"),
		IssueDate:       ir.MustDate("2024-01-15"),
		MaturityDate:    ir.MustDate("2026-01-15"),
		CouponRate:      ir.MustMoney("0.05"),
		CouponFrequency: 2,
	}
}

// issueBond runs the issuance request through acceptance and returns the
// live bond.
func issueBond(t *testing.T, f *fixture) ir.ContractID {
	t.Helper()
	req := f.create(t, "acme", templates.BondIssuanceRequestTemplate, bondTerms().Record())
	res := f.exercise(t, "alice", req, "AcceptIssuance", nil)
	require.Len(t, res.Produced, 1)
	return res.Produced[0]
}

func TestBondIssuance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.create(t, "acme", templates.BondIssuanceRequestTemplate, bondTerms().Record())

	_, err := f.eng.Exercise(ctx, "acme", req, "AcceptIssuance", nil)
	assert.Equal(t, ir.ErrUnauthorized, ir.KindOf(err), "the issuer cannot accept on the investor's behalf")

	res := f.exercise(t, "alice", req, "AcceptIssuance", nil)
	bond, err := f.eng.Ledger().Get(res.Produced[0])
	require.NoError(t, err)
	assert.Equal(t, templates.BondTemplate, bond.Template)
	assert.Equal(t, []ir.Party{"acme"}, bond.Signatories)
	assert.Equal(t, []ir.Party{"alice"}, bond.Observers)
	assert.Equal(t, bondTerms().Record(), bond.Payload)
}

func TestBondIssuance_Rejected(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, "acme", templates.BondIssuanceRequestTemplate, bondTerms().Record())

	res := f.exercise(t, "alice", req, "RejectIssuance", nil)
	assert.Empty(t, res.Produced)
	assert.Equal(t, ir.Text("rejected"), res.Value["status"])

	assert.Empty(t, f.eng.Ledger().Snapshot().All())
}

func TestPayCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bond := issueBond(t, f)

	_, err := f.eng.Exercise(ctx, "acme", bond, "PayCoupon", nil)
	assert.Equal(t, ir.ReasonOutsideTerm, ir.ReasonOf(err), "ledger date precedes the issue date")

	f.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	res := f.exercise(t, "acme", bond, "PayCoupon", nil)
	require.Len(t, res.Produced, 1)
	assert.Equal(t, ir.Int(1), res.Value["period"])
	assert.Equal(t, ir.Text("25.00"), res.Value["amount"])

	receipt := f.payload(t, res.Produced[0])
	assert.Equal(t, ir.Text("2024-03-01"), receipt["paymentDate"])
	assert.Equal(t, ir.Text("alice"), receipt["investor"])

	// The bond is not consumed by paying a coupon.
	live, err := f.eng.Ledger().Get(bond)
	require.NoError(t, err)
	assert.True(t, live.IsActive())
	assert.Empty(t, f.eng.Ledger().Log()[res.Seq-1].Consumed)

	_, err = f.eng.Exercise(ctx, "acme", bond, "PayCoupon", nil)
	assert.Equal(t, ir.ReasonAlreadyPaidThisPeriod, ir.ReasonOf(err))

	_, err = f.eng.Exercise(ctx, "alice", bond, "PayCoupon", nil)
	assert.Equal(t, ir.ErrUnauthorized, ir.KindOf(err))

	f.clock.Set(time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC))
	res = f.exercise(t, "acme", bond, "PayCoupon", nil)
	assert.Equal(t, ir.Int(2), res.Value["period"])
	assert.Len(t, f.eng.Ledger().Snapshot().Active(templates.CouponPaymentTemplate), 2)
}

func TestPayCoupon_ConcurrentAtMostOnce(t *testing.T) {
	f := newFixture(t)
	bond := issueBond(t, f)
	f.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	const racers = 8
	var wins, dups atomic.Int32
	g, gctx := errgroup.WithContext(context.Background())
	for range racers {
		g.Go(func() error {
			_, err := f.eng.Exercise(gctx, "acme", bond, "PayCoupon", nil)
			switch {
			case err == nil:
				wins.Add(1)
			case ir.ReasonOf(err) == ir.ReasonAlreadyPaidThisPeriod:
				dups.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(racers-1), dups.Load())
	assert.Len(t, f.eng.Ledger().Snapshot().Active(templates.CouponPaymentTemplate), 1)
}

func TestPayCoupon_OncePerPeriodAcrossTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bond := issueBond(t, f)
	f.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	f.exercise(t, "acme", bond, "PayCoupon", nil)

	offer := f.create(t, "bob", templates.BondTradeOfferTemplate, tradeOffer("alice").Record())
	res := f.exercise(t, "alice", offer, "AcceptTradeOffer",
		ir.NewRecord(ir.F("bondCid", ir.Int(int64(bond)))))
	traded := res.Produced[0]

	_, err := f.eng.Exercise(ctx, "acme", traded, "PayCoupon", nil)
	assert.Equal(t, ir.ReasonAlreadyPaidThisPeriod, ir.ReasonOf(err), "the new holder's bond is the same bond")

	// A coupon in flight loses to a trade that consumed its bond.
	f.clock.Set(time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC))
	_, err = f.eng.Exercise(ctx, "acme", bond, "PayCoupon", nil)
	assert.Equal(t, ir.ErrNotActive, ir.KindOf(err))
	res = f.exercise(t, "acme", traded, "PayCoupon", nil)
	assert.Equal(t, ir.Text("bob"), f.payload(t, res.Produced[0])["investor"])
}

func TestTransferBond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bond := issueBond(t, f)

	_, err := f.eng.Exercise(ctx, "alice", bond, "TransferBond",
		ir.NewRecord(ir.F("newInvestor", ir.Text("acme"))))
	assert.Equal(t, ir.ReasonPrecondition, ir.ReasonOf(err))

	res := f.exercise(t, "alice", bond, "TransferBond",
		ir.NewRecord(ir.F("newInvestor", ir.Text("carol"))))
	moved, err := f.eng.Ledger().Get(res.Produced[0])
	require.NoError(t, err)
	assert.Equal(t, []ir.Party{"carol"}, moved.Observers)

	// The previous holder lost sight of the live bond.
	assert.False(t, moved.VisibleTo("alice"))
	_, err = f.eng.Exercise(ctx, "alice", moved.ID, "TransferBond",
		ir.NewRecord(ir.F("newInvestor", ir.Text("dave"))))
	assert.Equal(t, ir.ErrNotFound, ir.KindOf(err))
}

func tradeOffer(seller ir.Party) templates.TradeOffer {
	terms := bondTerms()
	return templates.TradeOffer{
		Buyer:    "bob",
		Seller:   seller,
		Price:    ir.MustMoney("990.00"),
		Currency: "USD",
		BondData: templates.BondData{
			Issuer:       terms.Issuer,
			ISIN:         terms.ISIN,
			Denomination: terms.Denomination,
			MaturityDate: terms.MaturityDate,
		},
	}
}

func TestTradeOffer_Accept(t *testing.T) {
	f := newFixture(t)
	bond := issueBond(t, f)
	offer := f.create(t, "bob", templates.BondTradeOfferTemplate, tradeOffer("alice").Record())

	res := f.exercise(t, "alice", offer, "AcceptTradeOffer",
		ir.NewRecord(ir.F("bondCid", ir.Int(int64(bond)))))
	require.Len(t, res.Produced, 1)
	assert.Equal(t, ir.Text("bob"), f.payload(t, res.Produced[0])["investor"])
	assert.Equal(t, ir.Text("990.00"), res.Value["price"])

	log := f.eng.Ledger().Log()
	assert.Equal(t, []ir.ContractID{offer, bond}, log[len(log)-1].Consumed)

	// The traded bond descends from the seller's bond, not from the offer.
	hist, err := f.eng.Ledger().History(res.Produced[0])
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, templates.BondIssuanceRequestTemplate, hist[0].Template)
	assert.Equal(t, "AcceptIssuance", hist[1].Choice)
	assert.Equal(t, "AcceptTradeOffer", hist[2].Choice)
}

func TestTradeOffer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bond := issueBond(t, f)

	t.Run("bond held by someone else", func(t *testing.T) {
		// carol is named seller but alice holds the bond, so carol cannot see it.
		offer := f.create(t, "bob", templates.BondTradeOfferTemplate, tradeOffer("carol").Record())
		_, err := f.eng.Exercise(ctx, "carol", offer, "AcceptTradeOffer",
			ir.NewRecord(ir.F("bondCid", ir.Int(int64(bond)))))
		assert.Equal(t, ir.ErrNotFound, ir.KindOf(err))
	})

	t.Run("bond data mismatch", func(t *testing.T) {
		o := tradeOffer("alice")
		o.BondData.ISIN = "US0000000002"
		offer := f.create(t, "bob", templates.BondTradeOfferTemplate, o.Record())
		_, err := f.eng.Exercise(ctx, "alice", offer, "AcceptTradeOffer",
			ir.NewRecord(ir.F("bondCid", ir.Int(int64(bond)))))
		assert.Equal(t, ir.ReasonMismatch, ir.ReasonOf(err))
		e, ok := ir.AsError(err)
		require.True(t, ok)
		assert.Equal(t, bond, e.ContractID)
	})

	t.Run("buyer cannot accept", func(t *testing.T) {
		offer := f.create(t, "bob", templates.BondTradeOfferTemplate, tradeOffer("alice").Record())
		_, err := f.eng.Exercise(ctx, "bob", offer, "AcceptTradeOffer",
			ir.NewRecord(ir.F("bondCid", ir.Int(int64(bond)))))
		assert.Equal(t, ir.ErrUnauthorized, ir.KindOf(err), "only the seller controls acceptance")
	})

	t.Run("withdrawn by the buyer", func(t *testing.T) {
		offer := f.create(t, "bob", templates.BondTradeOfferTemplate, tradeOffer("alice").Record())
		res := f.exercise(t, "bob", offer, "WithdrawTradeOffer", nil)
		assert.Equal(t, ir.Text("withdrawn"), res.Value["status"])

		_, err := f.eng.Exercise(ctx, "alice", offer, "AcceptTradeOffer",
			ir.NewRecord(ir.F("bondCid", ir.Int(int64(bond)))))
		assert.Equal(t, ir.ErrNotActive, ir.KindOf(err))
	})

	live, err := f.eng.Ledger().Get(bond)
	require.NoError(t, err)
	assert.True(t, live.IsActive(), "failed trades leave the bond in place")
}
