// Package core provides amount parsing and formatting.
//
// Member contributions travel as JSON numbers, so the domain keeps them as
// float64. Form input is parsed through cents to get predictable rounding.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a decimal string to an amount with half-up rounding
// on the third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero is a
// valid contribution; negative values and malformed input are rejected.
//
// Examples:
//   ParseAmount("12.34")  -> 12.34, nil
//   ParseAmount("12,345") -> 12.35, nil (rounds up)
//   ParseAmount("0")      -> 0, nil
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<53 - 1) / 100
	if iv > maxSafe {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return float64(iv*100+fracCents) / 100, nil
}

// FormatAmount renders an amount for display, e.g. "$1,234.50".
// Whole amounts drop the decimals ("$150").
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "$0"
	}
	neg := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	whole := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	s := "$" + b.String()
	if rem := cents % 100; rem != 0 {
		s += "." + strconv.FormatInt(rem/10, 10) + strconv.FormatInt(rem%10, 10)
	}
	if neg {
		return "-" + s
	}
	return s
}
