package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected currency.Unit
		wantErr  bool
	}{
		{"empty falls back to default", "", DefaultCurrency, false},
		{"usd", "USD", currency.USD, false},
		{"lower case", "eur", currency.EUR, false},
		{"unknown", "XYZW", currency.Unit{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := ParseCurrency(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, unit)
		})
	}
}

func TestMoney_String(t *testing.T) {
	m := New(decimal.RequireFromString("12.5"), currency.USD)
	assert.Equal(t, "USD 12.50", m.String())

	yen := New(decimal.RequireFromString("1200.4"), currency.JPY)
	assert.Equal(t, "JPY 1200", yen.String())
}

func TestMoney_Rounded(t *testing.T) {
	m := New(decimal.RequireFromString("10.005"), currency.USD)
	assert.True(t, decimal.RequireFromString("10.01").Equal(m.Rounded()))
}
