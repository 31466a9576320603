// Package percent converts between stored composition fractions (0..1) and
// the percentages (0..100) users enter and read.
package percent

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"materialcore/pkg/domain"
)

const (
	// FractionDecimals is the precision stored fractions are rounded to.
	FractionDecimals = 10
	// PercentageDecimals keeps percentages exact for fractions at FractionDecimals.
	PercentageDecimals = FractionDecimals - 2
)

// Round rounds v half-up (away from zero for ties) to the given number of
// decimals. Rounding operates on the shortest decimal representation of v so
// that 0.125 rounds to 0.13 even though its binary value is not exact.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || decimals < 0 {
		return v
	}
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) <= decimals {
		return v
	}
	n, ok := new(big.Int).SetString(whole+frac[:decimals], 10)
	if !ok {
		return v
	}
	if frac[decimals] >= '5' {
		n.Add(n, big.NewInt(1))
	}
	digits := n.String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	cut := len(digits) - decimals
	out, err := strconv.ParseFloat(digits[:cut]+"."+digits[cut:], 64)
	if err != nil {
		return v
	}
	if neg {
		return -out
	}
	return out
}

// ToFraction converts a user-entered percentage in [0,100] into a stored fraction.
func ToFraction(p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return 0, domain.OutOfRange("percentage", p, 0, 100)
	}
	return Round(p/100, FractionDecimals), nil
}

// ToPercentage converts a stored fraction into a percentage.
func ToPercentage(f float64) float64 {
	return Round(f*100, PercentageDecimals)
}

// Format renders a stored fraction as a percentage string with at least one
// decimal digit and no trailing zeros, e.g. 0.6 -> "60.0", 0.125 -> "12.5".
func Format(f float64) string {
	s := strconv.FormatFloat(ToPercentage(f), 'f', PercentageDecimals, 64)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	if s == "-0.0" {
		s = "0.0"
	}
	return s
}

// Parse reads a user-entered percentage, tolerating surrounding whitespace,
// a trailing percent sign and a decimal comma, and returns the stored fraction.
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	s = strings.Replace(s, ",", ".", 1)
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.Error{Kind: domain.KindOutOfRange, Field: "percentage", Detail: "not a number: " + s}
	}
	return ToFraction(p)
}
