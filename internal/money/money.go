package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultCurrency is used when no currency is configured.
var DefaultCurrency = currency.USD

// Money is an amount in a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// New creates a Money value.
func New(amount decimal.Decimal, cur currency.Unit) Money {
	return Money{Amount: amount, Currency: cur}
}

// ParseCurrency parses an ISO 4217 code, falling back to DefaultCurrency for an empty code.
func ParseCurrency(code string) (currency.Unit, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return currency.Unit{}, fmt.Errorf("invalid currency %q: %w", code, err)
	}
	return unit, nil
}

// Rounded returns the amount rounded to the currency's standard scale.
func (m Money) Rounded() decimal.Decimal {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Amount.Round(int32(scale))
}

// String formats the amount as "USD 12.50".
func (m Money) String() string {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Currency.String() + " " + m.Amount.StringFixed(int32(scale))
}
