package classify

import (
	"errors"
	"strings"
)

// Rules holds the ordered keyword sets used for matching. Order matters only
// for reporting which keyword matched first; matching itself is a substring
// test against the machine name and the label text independently.
type Rules struct {
	Total    []string `koanf:"total" yaml:"total"`
	Currency []string `koanf:"currency" yaml:"currency"`
	PastDate []string `koanf:"past_date" yaml:"past_date"`
}

// DefaultRules returns the built-in keyword vocabulary.
func DefaultRules() Rules {
	return Rules{
		Total:    []string{"total", "sum", "grand"},
		Currency: []string{"amount", "price", "cost", "total", "expense", "payment", "fee", "charge", "salary", "wage"},
		PastDate: []string{"expense", "receipt", "purchase", "invoice", "transaction", "birth", "start", "date", "when"},
	}
}

var errEmptyTotalKeywords = errors.New("classify: total keyword set is empty")

// Normalize lower-cases and trims every keyword, dropping blanks and
// duplicates while preserving order.
func (r Rules) Normalize() Rules {
	return Rules{
		Total:    normalizeKeywords(r.Total),
		Currency: normalizeKeywords(r.Currency),
		PastDate: normalizeKeywords(r.PastDate),
	}
}

// Validate reports configuration mistakes that would make aggregation
// impossible.
func (r Rules) Validate() error {
	if len(normalizeKeywords(r.Total)) == 0 {
		return errEmptyTotalKeywords
	}
	return nil
}

func normalizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		trimmed := strings.ToLower(strings.TrimSpace(keyword))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// matchKeyword tests each keyword against both tokens and returns the first
// keyword found.
func matchKeyword(keywords []string, machineName, label string) (string, bool) {
	for _, keyword := range keywords {
		if machineName != "" && strings.Contains(machineName, keyword) {
			return keyword, true
		}
		if label != "" && strings.Contains(label, keyword) {
			return keyword, true
		}
	}
	return "", false
}
