// Package money provides shared amount parsing and formatting utilities.
//
// Amounts are stored as int64 in minor units with 2 decimal places
// (1 unit of currency = 100 minor units). Display formatting trims
// trailing zeros so whole amounts render without a fractional part.
package money

import (
	"strconv"
	"strings"
)

const Decimals = 2

// Parse converts a decimal string (e.g. "1.50") to its minor-unit
// int64 representation (150). Returns (0, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 2 decimal places
func Parse(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}

	if strings.HasPrefix(s, "-") {
		return 0, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Pad or trim to 2 decimals
	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	v, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Format converts a minor-unit int64 to a human-readable decimal string
// with trailing zeros trimmed (150 -> "1.5", 8000 -> "80").
func Format(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal]
	frac := strings.TrimRight(s[decimal:], "0")
	if frac != "" {
		result += "." + frac
	}
	if neg {
		result = "-" + result
	}
	return result
}

// FromMajor converts whole currency units to minor units.
func FromMajor(v int64) int64 {
	return v * 100
}

// Percent computes pct% of amount in minor units, rounded half up.
func Percent(amount int64, pct int64) int64 {
	return (amount*pct + 50) / 100
}
