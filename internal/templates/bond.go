package templates

import (
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/registry"
)

// Template names of the bond family.
const (
	BondIssuanceRequestTemplate = "BondIssuanceRequest"
	BondTemplate                = "Bond"
	CouponPaymentTemplate       = "CouponPayment"
	BondTradeOfferTemplate      = "BondTradeOffer"
)

// BondTerms are the economic terms shared by an issuance request and the bond it becomes.
type BondTerms struct {
	Issuer          ir.Party
	Investor        ir.Party
	ISIN            string
	Currency        string
	Denomination    ir.Money
	IssueDate       ir.Date
	MaturityDate    ir.Date
	CouponRate      ir.Money
	CouponFrequency int64
}

// DecodeBondTerms reads the shared bond terms from a payload.
func DecodeBondTerms(r ir.Record) (BondTerms, error) {
	fr := &fieldReader{r: r}
	t := BondTerms{
		Issuer:          fr.party("issuer"),
		Investor:        fr.party("investor"),
		ISIN:            fr.text("isin"),
		Currency:        fr.text("currency"),
		Denomination:    fr.money("denomination"),
		IssueDate:       fr.date("issueDate"),
		MaturityDate:    fr.date("maturityDate"),
		CouponRate:      fr.money("couponRate"),
		CouponFrequency: fr.integer("couponFrequency"),
	}
	return t, fr.err
}

// Record encodes the terms as a payload.
func (t BondTerms) Record() ir.Record {
	return ir.NewRecord(
		ir.F("issuer", ir.Text(t.Issuer)),
		ir.F("investor", ir.Text(t.Investor)),
		ir.F("isin", ir.Text(t.ISIN)),
		ir.F("currency", ir.Text(t.Currency)),
		ir.F("denomination", t.Denomination.Value()),
		ir.F("issueDate", t.IssueDate.Value()),
		ir.F("maturityDate", t.MaturityDate.Value()),
		ir.F("couponRate", t.CouponRate.Value()),
		ir.F("couponFrequency", ir.Int(t.CouponFrequency)),
	)
}

// PeriodMonths is the length of one coupon period in months.
func (t BondTerms) PeriodMonths() int {
	return 12 / int(t.CouponFrequency)
}

// Periods is the number of coupon periods between issue and maturity.
// A bond shorter than one period still pays a single coupon.
func (t BondTerms) Periods() int64 {
	n := int64(t.MaturityDate.MonthsSince(t.IssueDate) / t.PeriodMonths())
	return max(n, 1)
}

// PeriodOn returns the 1-based coupon period that contains day, capped at
// the last period. Fails OutsideTerm for days before issue or after maturity.
func (t BondTerms) PeriodOn(day ir.Date) (int64, error) {
	if day.Before(t.IssueDate) || day.After(t.MaturityDate) {
		return 0, ir.Invalid(ir.ReasonOutsideTerm, "%s is outside the bond term %s to %s", day, t.IssueDate, t.MaturityDate)
	}
	k := int64(day.MonthsSince(t.IssueDate)/t.PeriodMonths()) + 1
	return min(k, t.Periods()), nil
}

// CouponAmount is denomination * couponRate / couponFrequency, exact. It is
// written with at least the denomination's decimal places; extra digits
// such as the half cent of 1000.00 * 0.0375 / 12 are kept.
func (t BondTerms) CouponAmount() (ir.Money, error) {
	gross, err := t.Denomination.Mul(t.CouponRate)
	if err != nil {
		return ir.Money{}, err
	}
	per, err := gross.DivInt(t.CouponFrequency)
	if err != nil {
		return ir.Money{}, err
	}
	return per.WithMinScale(t.Denomination.Scale()), nil
}

// Bond is the typed view of a Bond payload. Paid coupons are not recorded
// on the bond; each one is a CouponPayment keyed by issuer, isin and period.
type Bond struct {
	BondTerms
}

// DecodeBond reads a Bond payload.
func DecodeBond(r ir.Record) (Bond, error) {
	terms, err := DecodeBondTerms(r)
	if err != nil {
		return Bond{}, err
	}
	return Bond{BondTerms: terms}, nil
}

// CouponPayment is the receipt of one paid coupon period.
type CouponPayment struct {
	Issuer      ir.Party
	Investor    ir.Party
	Bond        string
	Period      int64
	Amount      ir.Money
	Currency    string
	PaymentDate ir.Date
}

// DecodeCouponPayment reads a CouponPayment payload.
func DecodeCouponPayment(r ir.Record) (CouponPayment, error) {
	fr := &fieldReader{r: r}
	p := CouponPayment{
		Issuer:      fr.party("issuer"),
		Investor:    fr.party("investor"),
		Bond:        fr.text("bond"),
		Period:      fr.integer("period"),
		Amount:      fr.money("amount"),
		Currency:    fr.text("currency"),
		PaymentDate: fr.date("paymentDate"),
	}
	return p, fr.err
}

// Record encodes the payment as a payload.
func (p CouponPayment) Record() ir.Record {
	return ir.NewRecord(
		ir.F("issuer", ir.Text(p.Issuer)),
		ir.F("investor", ir.Text(p.Investor)),
		ir.F("bond", ir.Text(p.Bond)),
		ir.F("period", ir.Int(p.Period)),
		ir.F("amount", p.Amount.Value()),
		ir.F("currency", ir.Text(p.Currency)),
		ir.F("paymentDate", p.PaymentDate.Value()),
	)
}

// couponPaymentKey identifies the coupon period a payment settles. The
// ledger admits one active CouponPayment per key.
func couponPaymentKey(p ir.Record) string {
	return fmt.Sprintf("%q/%q/%d", p.Text("issuer"), p.Text("bond"), p.Int("period"))
}

// BondData identifies the bond a trade offer is for.
type BondData struct {
	Issuer       ir.Party
	ISIN         string
	Denomination ir.Money
	MaturityDate ir.Date
}

// TradeOffer is the typed view of a BondTradeOffer payload.
type TradeOffer struct {
	Buyer    ir.Party
	Seller   ir.Party
	Price    ir.Money
	Currency string
	BondData BondData
}

// DecodeTradeOffer reads a BondTradeOffer payload.
func DecodeTradeOffer(r ir.Record) (TradeOffer, error) {
	fr := &fieldReader{r: r}
	o := TradeOffer{
		Buyer:    fr.party("buyer"),
		Seller:   fr.party("seller"),
		Price:    fr.money("price"),
		Currency: fr.text("currency"),
	}
	if fr.err != nil {
		return TradeOffer{}, fr.err
	}
	data, ok := r["bondData"].(ir.Record)
	if !ok {
		return TradeOffer{}, ir.Invalid(ir.ReasonSchemaViolation, "field %q must be a record", "bondData")
	}
	dr := &fieldReader{r: data}
	o.BondData = BondData{
		Issuer:       dr.party("issuer"),
		ISIN:         dr.text("isin"),
		Denomination: dr.money("denomination"),
		MaturityDate: dr.date("maturityDate"),
	}
	return o, dr.err
}

// Record encodes the offer as a payload.
func (o TradeOffer) Record() ir.Record {
	return ir.NewRecord(
		ir.F("buyer", ir.Text(o.Buyer)),
		ir.F("seller", ir.Text(o.Seller)),
		ir.F("price", o.Price.Value()),
		ir.F("currency", ir.Text(o.Currency)),
		ir.F("bondData", ir.NewRecord(
			ir.F("issuer", ir.Text(o.BondData.Issuer)),
			ir.F("isin", ir.Text(o.BondData.ISIN)),
			ir.F("denomination", o.BondData.Denomination.Value()),
			ir.F("maturityDate", o.BondData.MaturityDate.Value()),
		)),
	)
}

// Matches reports whether a live bond is the one the offer describes.
func (d BondData) Matches(b Bond) bool {
	return d.Issuer == b.Issuer &&
		d.ISIN == b.ISIN &&
		d.Denomination.Equal(b.Denomination) &&
		d.MaturityDate.Equal(b.MaturityDate)
}

func bondBindings() []registry.Binding {
	return []registry.Binding{
		{
			Template: BondIssuanceRequestTemplate,
			Ensure:   ensureIssuanceRequest,
			Choices: map[string]registry.ChoiceFunc{
				"AcceptIssuance": acceptIssuance,
				"RejectIssuance": rejectIssuance,
			},
		},
		{
			Template: BondTemplate,
			Ensure:   ensureBond,
			Choices: map[string]registry.ChoiceFunc{
				"PayCoupon":    payCoupon,
				"TransferBond": transferBond,
			},
		},
		{
			Template:  CouponPaymentTemplate,
			Ensure:    ensureCouponPayment,
			Key:       couponPaymentKey,
			KeyReason: ir.ReasonAlreadyPaidThisPeriod,
		},
		{
			Template: BondTradeOfferTemplate,
			Ensure:   ensureTradeOffer,
			Choices: map[string]registry.ChoiceFunc{
				"AcceptTradeOffer":   acceptTradeOffer,
				"RejectTradeOffer":   closeTradeOffer("rejected"),
				"WithdrawTradeOffer": closeTradeOffer("withdrawn"),
			},
		},
	}
}

func validateTerms(t BondTerms) error {
	switch t.CouponFrequency {
	case 1, 2, 4, 12:
	default:
		return ir.Invalid(ir.ReasonPrecondition, "couponFrequency must be 1, 2, 4 or 12")
	}
	if t.Issuer == t.Investor {
		return ir.Invalid(ir.ReasonPrecondition, "issuer and investor must be different parties")
	}
	if !t.MaturityDate.After(t.IssueDate) {
		return ir.Invalid(ir.ReasonPrecondition, "maturityDate must be after issueDate")
	}
	if err := requirePositive(t.Denomination, "denomination"); err != nil {
		return err
	}
	if err := requireNonNegative(t.CouponRate, "couponRate"); err != nil {
		return err
	}
	if _, err := t.CouponAmount(); err != nil {
		return ir.Invalid(ir.ReasonPrecondition, "denomination * couponRate / couponFrequency is not an exact decimal")
	}
	return nil
}

func ensureIssuanceRequest(p ir.Record) error {
	t, err := DecodeBondTerms(p)
	if err != nil {
		return err
	}
	return validateTerms(t)
}

func ensureBond(p ir.Record) error {
	b, err := DecodeBond(p)
	if err != nil {
		return err
	}
	return validateTerms(b.BondTerms)
}

func ensureCouponPayment(p ir.Record) error {
	c, err := DecodeCouponPayment(p)
	if err != nil {
		return err
	}
	if c.Period < 1 {
		return ir.Invalid(ir.ReasonPrecondition, "period must be at least 1")
	}
	return requirePositive(c.Amount, "amount")
}

func ensureTradeOffer(p ir.Record) error {
	o, err := DecodeTradeOffer(p)
	if err != nil {
		return err
	}
	if o.Buyer == o.Seller {
		return ir.Invalid(ir.ReasonPrecondition, "buyer and seller must be different parties")
	}
	if err := requirePositive(o.Price, "price"); err != nil {
		return err
	}
	return requirePositive(o.BondData.Denomination, "bondData.denomination")
}

func acceptIssuance(_ registry.Context, self, _ ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	terms, err := DecodeBondTerms(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	b := Bond{BondTerms: terms}
	return registry.Outcome{
		Produced: []registry.Output{{Template: BondTemplate, Payload: b.Record()}},
		Result:   ir.NewRecord(ir.F("isin", ir.Text(terms.ISIN))),
	}, nil
}

func rejectIssuance(_ registry.Context, _, _ ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	return registry.Outcome{Result: ir.NewRecord(ir.F("status", ir.Text("rejected")))}, nil
}

// payCoupon pays the coupon for the period containing the ledger date. The
// bond stays active. A second payment for the same period is refused by the
// ledger's CouponPayment key with AlreadyPaidThisPeriod, including when two
// payments race.
func payCoupon(ctx registry.Context, self, _ ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	bond, err := DecodeBond(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	today := ctx.Today()

	period, err := bond.PeriodOn(today)
	if err != nil {
		return registry.Outcome{}, err
	}

	amount, err := bond.CouponAmount()
	if err != nil {
		return registry.Outcome{}, err
	}
	if !amount.IsPositive() {
		return registry.Outcome{}, ir.Invalid(ir.ReasonPrecondition, "bond carries no coupon")
	}

	payment := CouponPayment{
		Issuer:      bond.Issuer,
		Investor:    bond.Investor,
		Bond:        bond.ISIN,
		Period:      period,
		Amount:      amount,
		Currency:    bond.Currency,
		PaymentDate: today,
	}

	return registry.Outcome{
		Produced: []registry.Output{
			{Template: CouponPaymentTemplate, Payload: payment.Record()},
		},
		Result: ir.NewRecord(
			ir.F("period", ir.Int(period)),
			ir.F("amount", amount.Value()),
		),
	}, nil
}

func transferBond(_ registry.Context, self, args ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
	bond, err := DecodeBond(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	next := ir.Party(args.Text("newInvestor"))
	switch next {
	case bond.Investor:
		return registry.Outcome{}, ir.Invalid(ir.ReasonPrecondition, "bond is already held by the new investor")
	case bond.Issuer:
		return registry.Outcome{}, ir.Invalid(ir.ReasonPrecondition, "bond cannot be transferred to its issuer")
	}

	from := bond.Investor
	bond.Investor = next
	return registry.Outcome{
		Produced: []registry.Output{{Template: BondTemplate, Payload: bond.Record()}},
		Result: ir.NewRecord(
			ir.F("from", ir.Text(from)),
			ir.F("to", ir.Text(next)),
		),
	}, nil
}

// acceptTradeOffer moves the offered bond to the buyer. The live bond must
// match the offer's bondData and be held by the seller.
func acceptTradeOffer(_ registry.Context, self, _ ir.Record, refs map[string]ir.Contract) (registry.Outcome, error) {
	offer, err := DecodeTradeOffer(self)
	if err != nil {
		return registry.Outcome{}, err
	}
	ref := refs["bondCid"]
	bond, err := DecodeBond(ref.Payload)
	if err != nil {
		return registry.Outcome{}, err
	}

	switch {
	case !offer.BondData.Matches(bond):
		return registry.Outcome{}, ir.Invalid(ir.ReasonMismatch, "bond does not match the offer's bond data").OnContract(ref.ID)
	case bond.Investor != offer.Seller:
		return registry.Outcome{}, ir.Invalid(ir.ReasonMismatch, "bond is not held by the seller").OnContract(ref.ID)
	case bond.Issuer == offer.Buyer:
		return registry.Outcome{}, ir.Invalid(ir.ReasonPrecondition, "bond cannot be sold to its issuer").OnContract(ref.ID)
	}

	bond.Investor = offer.Buyer
	return registry.Outcome{
		Produced: []registry.Output{{Template: BondTemplate, Payload: bond.Record()}},
		Result: ir.NewRecord(
			ir.F("price", offer.Price.Value()),
			ir.F("currency", ir.Text(offer.Currency)),
			ir.F("buyer", ir.Text(offer.Buyer)),
		),
	}, nil
}

func closeTradeOffer(status string) registry.ChoiceFunc {
	return func(_ registry.Context, _, _ ir.Record, _ map[string]ir.Contract) (registry.Outcome, error) {
		return registry.Outcome{Result: ir.NewRecord(ir.F("status", ir.Text(status)))}, nil
	}
}
