// Package core provides money parsing and rounding utilities.
//
// Amounts travel as float64 in JSON documents, but every sum and product is
// computed with decimal arithmetic and only converted back at the edge.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a positive amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half away from zero on the third decimal place.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("1.005")  -> 1.01, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Round6 rounds to micro units, the precision used for SOL quantities.
func Round6(v float64) float64 {
	return decimal.NewFromFloat(v).Round(6).InexactFloat64()
}

// Cashback returns round2(amount * rate).
func Cashback(amount, rate float64) float64 {
	return cashbackDec(amount, rate).InexactFloat64()
}

func cashbackDec(amount, rate float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate)).Round(2)
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
