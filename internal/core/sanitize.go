package core

import (
	"math"
	"strings"
)

const maxSanitizedIDLen = 50

// SanitizeAmount coerces NaN and infinities to zero so aggregation never
// propagates a non-finite value to the UI.
func SanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// AmountOrZero dereferences an optional amount, treating nil as zero.
func AmountOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return SanitizeAmount(*p)
}

// SanitizeID makes a raw identifier safe for use inside a namespaced rubro
// id: every character outside [a-zA-Z0-9_-] becomes '-', the result is
// capped at 50 characters, and empty input falls back to "unknown".
func SanitizeID(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := b.String()
	if len(out) > maxSanitizedIDLen {
		out = out[:maxSanitizedIDLen]
	}
	if out == "" {
		return "unknown"
	}
	return out
}
