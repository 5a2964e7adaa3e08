package model

import (
	"fmt"

	"github.com/shopspring/decimal"

	"crypto-paylink/internal/domain"
)

// AmountScale is the fixed precision (fractional digits) used for all
// monetary arithmetic. Token amounts travel through the system as decimal
// strings in display units; every comparison and sum goes through
// shopspring/decimal, never through float64 or string ordering.
const AmountScale = 8

// ParseAmount parses a decimal-string amount. Empty strings are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty amount", domain.ErrInvalidArgument)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q", domain.ErrInvalidArgument, s)
	}
	return d, nil
}

// ParsePositiveAmount parses an amount and requires it to be > 0.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q must be positive", domain.ErrInvalidArgument, s)
	}
	return d, nil
}

// CompareAmounts compares two decimal-string amounts numerically.
// Returns -1 when a < b, 0 when equal, +1 when a > b.
func CompareAmounts(a, b string) (int, error) {
	da, err := ParseAmount(a)
	if err != nil {
		return 0, err
	}
	db, err := ParseAmount(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

// AddAmounts returns a+b rounded to AmountScale, trailing zeros trimmed.
func AddAmounts(a, b string) (string, error) {
	da, err := ParseAmount(a)
	if err != nil {
		return "", err
	}
	db, err := ParseAmount(b)
	if err != nil {
		return "", err
	}
	return da.Add(db).Round(AmountScale).String(), nil
}

// SubAmounts returns a-b rounded to AmountScale, trailing zeros trimmed.
func SubAmounts(a, b string) (string, error) {
	da, err := ParseAmount(a)
	if err != nil {
		return "", err
	}
	db, err := ParseAmount(b)
	if err != nil {
		return "", err
	}
	return da.Sub(db).Round(AmountScale).String(), nil
}

// PercentOf returns amount*percent/100 rounded to AmountScale, trailing
// zeros trimmed. Used for commissions and down payments.
func PercentOf(amount string, percent float64) (string, error) {
	d, err := ParseAmount(amount)
	if err != nil {
		return "", err
	}
	p := decimal.NewFromFloat(percent)
	return d.Mul(p).Div(decimal.NewFromInt(100)).Round(AmountScale).String(), nil
}

// FormatScheduleAmount renders an installment share the way schedules are
// quoted: rounded to AmountScale with trailing zeros trimmed, except that
// integral values always carry one decimal place ("25" quotes as "25.0").
func FormatScheduleAmount(d decimal.Decimal) string {
	r := d.Round(AmountScale)
	if r.IsInteger() {
		return r.StringFixed(1)
	}
	return r.String()
}
