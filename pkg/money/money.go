// Package money provides amount parsing and currency display for the finance
// managers and reports. Amounts are carried as shopspring decimals and rendered
// through go-money, which knows each ISO-4217 currency's grapheme and fraction.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	BRL = "BRL" // Brazilian Real
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
)

// ErrInvalidAmount is returned when a string cannot be parsed as an amount
var ErrInvalidAmount = errors.New("invalid amount")

// Money is a monetary value in minor units with its currency
type Money struct {
	m *money.Money
}

// New creates Money from minor units (cents)
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, currencyCode)}
}

// NewFromDecimal converts a decimal amount into Money, rounding half away from
// zero at the currency's fraction.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(BRL)
		currencyCode = BRL
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	cents := amount.Mul(multiplier).Round(0).IntPart()
	return New(cents, currencyCode)
}

// Zero returns a zero value for the currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// Add returns m + other; currencies must match
func (m *Money) Add(other *Money) (*Money, error) {
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("failed to add amounts: %w", err)
	}
	return &Money{m: sum}, nil
}

// Display formats the value with the currency grapheme, e.g. "R$1.234,56"
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return Zero(BRL).Display()
	}
	return m.m.Display()
}

// String returns the plain decimal amount, e.g. "1234.56"
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(int32(m.fraction()))
}

// ToDecimal converts back to a decimal in major units
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.fraction()))
}

func (m *Money) fraction() int {
	if m == nil || m.m == nil {
		return 2
	}
	return m.m.Currency().Fraction
}

// Display is shorthand for NewFromDecimal(amount, currency).Display()
func Display(amount decimal.Decimal, currencyCode string) string {
	return NewFromDecimal(amount, currencyCode).Display()
}

// ParseAmount parses user or legacy amount strings such as "1200", "1,234.56",
// "1.234,56" and "R$ 1.200,00". The decimal separator is whichever of '.' or ','
// appears last; a lone separator followed by exactly three digits is a
// thousands separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	for _, sym := range []string{"R$", "US$", "$", "€", "£"} {
		clean = strings.ReplaceAll(clean, sym, "")
	}
	clean = strings.ReplaceAll(clean, " ", "")
	clean = strings.ReplaceAll(clean, " ", "")

	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = strings.Trim(clean, "()")
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 || len(clean)-lastComma-1 == 3 {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(clean, ".") > 1 || len(clean)-lastDot-1 == 3 {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}

	if clean == "" || clean == "-" {
		return decimal.Zero, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
