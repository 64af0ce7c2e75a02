package aggregate

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits aggregates are rounded to.
const Places = 2

const (
	// MaxIntegerDigits bounds the magnitude of an amount. Larger values are
	// treated as unparsable.
	MaxIntegerDigits = 30
	// maxScale is the number of fractional digits kept from an amount.
	maxScale = 30
)

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseAmount converts a raw field value into a decimal. Values that do not
// parse contribute zero; a value with trailing garbage contributes its
// leading numeric part ("12abc" is 12). It never fails.
func ParseAmount(raw string) decimal.Decimal {
	value, _ := parseAmount(raw)
	return value
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, false
	}
	if value, err := decimal.NewFromString(trimmed); err == nil {
		return bounded(value)
	}
	prefix := numericPrefix.FindString(trimmed)
	if prefix == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(prefix)
	if err != nil {
		return decimal.Zero, false
	}
	return bounded(value)
}

// InRange reports whether value has at most MaxIntegerDigits integer digits.
// Only the exponent and coefficient length are inspected, so huge exponents
// are rejected without being expanded.
func InRange(value decimal.Decimal) bool {
	return magnitude(value) <= MaxIntegerDigits
}

// magnitude is the position of the most significant digit relative to the
// decimal point.
func magnitude(value decimal.Decimal) int64 {
	if value.IsZero() {
		return 0
	}
	return int64(value.Exponent()) + int64(value.NumDigits())
}

// bounded rejects out of range values, drops values too small to matter and
// truncates excess fractional digits so later arithmetic stays cheap.
func bounded(value decimal.Decimal) (decimal.Decimal, bool) {
	if !InRange(value) {
		return decimal.Zero, false
	}
	if magnitude(value) < -maxScale {
		return decimal.Zero, true
	}
	if value.Exponent() < -maxScale {
		value = value.Truncate(maxScale)
	}
	return value, true
}

// FormatAmount renders a parseable value with exactly two fractional digits.
// Empty and unparsable values are returned unchanged with ok=false.
func FormatAmount(raw string) (string, bool) {
	value, ok := parseAmount(raw)
	if !ok {
		return raw, false
	}
	return value.StringFixed(Places), true
}

// ClampNegative replaces a negative value with "0". ok reports whether the
// value was changed.
func ClampNegative(raw string) (string, bool) {
	value, parsed := parseAmount(raw)
	if !parsed || !value.IsNegative() {
		return raw, false
	}
	return "0", true
}
