package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{10000, "USD", "100.00"},
		{10050, "usd", "100.50"},
		{-4000, "EUR", "-40.00"},
		{5, "USD", "0.05"},
		{500, "JPY", "500"},
		{1234, "KWD", "1.234"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatAmount(tc.amount, tc.currency), "%d %s", tc.amount, tc.currency)
	}
}

func TestLookupCurrencyNormalizesCode(t *testing.T) {
	got := LookupCurrency(" jpy ")
	assert.Equal(t, "JPY", got.Code)
	assert.Equal(t, int32(0), got.MinorUnit)
}
