package classify

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDateAfterBound signals a date value later than its computed maximum.
var ErrDateAfterBound = errors.New("classify: date is after the allowed bound")

// ValidateDate checks value against the max bound. Empty values, an empty
// bound and values that do not parse as dates are accepted; only a
// well-formed date strictly after the bound fails. A date-only bound covers
// the whole day, so "2025-06-01T10:00" passes a max of "2025-06-01".
func ValidateDate(value, max string) error {
	value = strings.TrimSpace(value)
	max = strings.TrimSpace(max)
	if value == "" || max == "" {
		return nil
	}
	selected, _, ok := parseDate(value)
	if !ok {
		return nil
	}
	bound, dayOnly, ok := parseDate(max)
	if !ok {
		return nil
	}
	if dayOnly {
		selected = time.Date(selected.Year(), selected.Month(), selected.Day(), 0, 0, 0, 0, time.UTC)
	}
	if selected.After(bound) {
		return fmt.Errorf("%w: %s > %s", ErrDateAfterBound, value, max)
	}
	return nil
}

// parseDate reports whether value carried only a calendar date.
func parseDate(value string) (time.Time, bool, bool) {
	for _, layout := range []string{DateLayout, "2006-01-02T15:04", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, layout == DateLayout, true
		}
	}
	return time.Time{}, false, false
}
