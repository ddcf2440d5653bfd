package taxonomy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFKD and drops combining marks, so accented
// input folds to plain ASCII letters ("café" -> "cafe").
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

var parenthetical = regexp.MustCompile(`\([^)]*\)`)

// NormalizeKey reduces a heterogeneous identifier or label to the slug used
// as the join key for every taxonomy lookup. The empty string means "no
// usable key". The result is idempotent and independent of runtime locale.
//
// Steps, in order: take the segment after the last '#' for storage-style
// composite keys, strip diacritics, drop parenthetical content, lowercase,
// collapse every run of characters outside [a-z0-9-] to a single hyphen,
// collapse repeated hyphens and trim them from both ends.
func NormalizeKey(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		s = s[i+1:]
	}
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = parenthetical.ReplaceAllString(s, "")
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s = b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}
