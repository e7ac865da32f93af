package ir

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// moneyContext is the arithmetic context for all Money operations.
// 34 digits is decimal128 precision. Inexact is trapped: a result that
// does not fit is an error, never a rounded amount.
var moneyContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfEven
	c.Traps |= apd.Inexact
	return c
}()

// moneyError maps an apd failure to a ledger error. An inexact result is
// InvalidArgument; anything else is a plain arithmetic error.
func moneyError(op string, cond apd.Condition, err error) error {
	if cond.Inexact() {
		return Invalid(ReasonPrecondition, "money %s: result is not exact within %d digits", op, moneyContext.Precision)
	}
	return fmt.Errorf("money %s: %w", op, err)
}

// Money is an exact decimal amount. It wraps an immutable *apd.Decimal;
// every operation allocates a fresh result. The zero value is 0.
type Money struct {
	d *apd.Decimal
}

// ParseMoney parses a decimal string such as "25", "25.00" or "-3.5".
// NaN, infinities and exponent notation beyond the context are rejected.
func ParseMoney(s string) (Money, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Money{}, fmt.Errorf("invalid decimal %q: not finite", s)
	}
	return Money{d: d}, nil
}

// MustMoney is like ParseMoney but panics on error.
// Use only in tests or for constants.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromInt returns n as Money.
func MoneyFromInt(n int64) Money {
	return Money{d: apd.New(n, 0)}
}

func (m Money) dec() *apd.Decimal {
	if m.d == nil {
		return apd.New(0, 0)
	}
	return m.d
}

// Add returns m + o.
func (m Money) Add(o Money) (Money, error) {
	var r apd.Decimal
	if cond, err := moneyContext.Add(&r, m.dec(), o.dec()); err != nil {
		return Money{}, moneyError("add", cond, err)
	}
	return Money{d: &r}, nil
}

// Sub returns m - o.
func (m Money) Sub(o Money) (Money, error) {
	var r apd.Decimal
	if cond, err := moneyContext.Sub(&r, m.dec(), o.dec()); err != nil {
		return Money{}, moneyError("sub", cond, err)
	}
	return Money{d: &r}, nil
}

// Mul returns m * o.
func (m Money) Mul(o Money) (Money, error) {
	var r apd.Decimal
	if cond, err := moneyContext.Mul(&r, m.dec(), o.dec()); err != nil {
		return Money{}, moneyError("mul", cond, err)
	}
	return Money{d: &r}, nil
}

// DivInt returns the exact quotient m / n with trailing zeros stripped.
// Fails InvalidArgument when the quotient has no exact 34-digit form,
// as with 100 / 3.
func (m Money) DivInt(n int64) (Money, error) {
	if n == 0 {
		return Money{}, fmt.Errorf("money div: division by zero")
	}
	var r apd.Decimal
	if cond, err := moneyContext.Quo(&r, m.dec(), apd.New(n, 0)); err != nil {
		return Money{}, moneyError("div", cond, err)
	}
	r.Reduce(&r)
	return Money{d: &r}, nil
}

// WithMinScale pads m with trailing zeros to at least places decimal
// places. Significant digits are never dropped, so "3.125" stays as is
// while "25" becomes "25.00".
func (m Money) WithMinScale(places int32) Money {
	d := m.dec()
	if d.Exponent <= -places {
		return m
	}
	var r apd.Decimal
	if _, err := moneyContext.Quantize(&r, d, -places); err != nil {
		return m
	}
	return Money{d: &r}
}

// Scale is the number of digits after the decimal point.
func (m Money) Scale() int32 {
	return max(-m.dec().Exponent, 0)
}

// Cmp compares m and o numerically: -1, 0 or +1. Scale is ignored,
// so "5" and "5.00" compare equal.
func (m Money) Cmp(o Money) int {
	return m.dec().Cmp(o.dec())
}

// Equal reports numeric equality.
func (m Money) Equal(o Money) bool {
	return m.Cmp(o) == 0
}

// Sign returns -1, 0 or +1.
func (m Money) Sign() int {
	return m.dec().Sign()
}

// IsPositive reports m > 0.
func (m Money) IsPositive() bool {
	return m.Sign() > 0
}

// String renders m in plain decimal notation, preserving scale.
func (m Money) String() string {
	return m.dec().Text('f')
}

// Value returns m as payload Text.
func (m Money) Value() Value {
	return Text(m.String())
}

// MoneyField reads a Money from a record field.
func MoneyField(r Record, key string) (Money, error) {
	s, ok := r[key].(Text)
	if !ok {
		return Money{}, Invalid(ReasonSchemaViolation, "field %q must be a decimal string", key)
	}
	m, err := ParseMoney(string(s))
	if err != nil {
		return Money{}, Invalid(ReasonSchemaViolation, "field %q is not a valid decimal", key)
	}
	return m, nil
}
