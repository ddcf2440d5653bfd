package forecast

import (
	"regexp"
	"strconv"
	"strings"

	"presupuesto/internal/core"
)

// Months above 12 appear in multi-year grids and in historically mis-keyed
// rows; the upper bound of 100 preserves that tolerance.
const (
	minMonth = 1
	maxMonth = 100
)

var yearMonth = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParseMonthToken interprets the month spellings found in raw records:
// "M<n>", "YYYY-MM" (the MM part is the month of interest, not a calendar
// date) and bare integers 1..100. ok is false for anything else.
func ParseMonthToken(tok core.MonthToken) (int, bool) {
	s := strings.TrimSpace(tok.String())
	if s == "" {
		return 0, false
	}

	if m := yearMonth.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 || n > 12 {
			return 0, false
		}
		return n, true
	}

	if len(s) > 1 && (s[0] == 'M' || s[0] == 'm') {
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minMonth || n > maxMonth {
		return 0, false
	}
	return n, true
}
