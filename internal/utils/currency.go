package utils

import "strings"

// zeroDecimalCurrencies are charged in whole units by the processor.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// NormalizeCurrency lowercases and trims an ISO 4217 code, the form Stripe expects.
func NormalizeCurrency(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ValidCurrency reports whether code looks like a three-letter ISO code after normalization.
func ValidCurrency(code string) bool {
	c := NormalizeCurrency(code)
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// MinorUnitExponent returns how many decimal places the currency's minor unit has.
func MinorUnitExponent(code string) int32 {
	if zeroDecimalCurrencies[NormalizeCurrency(code)] {
		return 0
	}
	return 2
}
