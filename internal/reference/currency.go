// Package reference holds static ISO 4217 reference data used to present minor-unit amounts.
package reference

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency describes how many decimal places one unit of a currency is split into.
type Currency struct {
	Code      string `json:"code"`
	MinorUnit int32  `json:"minor_unit"`
}

const defaultMinorUnit = 2

var minorUnitOverrides = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,

	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "UYI": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,

	"CLF": 4, "UYW": 4,
}

// LookupCurrency returns the minor-unit exponent of code. Codes without an override use two
// decimal places.
func LookupCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	minor, ok := minorUnitOverrides[code]
	if !ok {
		minor = defaultMinorUnit
	}
	return Currency{Code: code, MinorUnit: minor}
}

// FormatAmount renders a minor-unit amount as a fixed-point decimal string, e.g. 10050 USD as
// "100.50" and 500 JPY as "500".
func FormatAmount(amount int64, currency string) string {
	minor := LookupCurrency(currency).MinorUnit
	return decimal.New(amount, -minor).StringFixed(minor)
}
