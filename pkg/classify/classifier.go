// Package classify assigns semantic roles to form fields from their
// descriptors. Rules are an explicit value handed to the classifier at
// construction time; the package keeps no process-wide state.
package classify

import (
	"time"

	"github.com/goliatone/go-formcalc/pkg/field"
)

// DateLayout is the wire format for date values and bounds.
const DateLayout = "2006-01-02"

const (
	currencyStep = "0.01"
	currencyMin  = "0"
)

// Option customises a Classifier.
type Option func(*Classifier)

// WithRules replaces the default keyword sets.
func WithRules(rules Rules) Option {
	return func(c *Classifier) {
		c.rules = rules.Normalize()
	}
}

// WithClock overrides the clock used to compute past-date bounds.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// Classifier applies the ordered keyword rule sets to descriptors.
type Classifier struct {
	rules Rules
	now   func() time.Time
}

// Match is the outcome of a classification, including the keyword that
// triggered it (empty for unmatched roles).
type Match struct {
	Role    field.Role
	Keyword string
}

// New constructs a Classifier with the default rules and the system clock.
func New(options ...Option) *Classifier {
	c := &Classifier{
		rules: DefaultRules().Normalize(),
		now:   time.Now,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// Rules returns the normalized rule set in use.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify returns the role for the descriptor.
func (c *Classifier) Classify(d field.Descriptor) field.Role {
	return c.Match(d).Role
}

// Match classifies the descriptor and reports the keyword that decided it.
//
// Numeric fields are tested against the total keywords before the currency
// keywords, so a descriptor containing "total" always becomes an aggregate
// and never a contributor.
func (c *Classifier) Match(d field.Descriptor) Match {
	switch d.Kind {
	case field.KindNumeric:
		if keyword, ok := matchKeyword(c.rules.Total, d.MachineName, d.LabelText); ok {
			return Match{Role: field.RoleAggregateTotal, Keyword: keyword}
		}
		if keyword, ok := matchKeyword(c.rules.Currency, d.MachineName, d.LabelText); ok {
			return Match{Role: field.RoleCurrencyAmount, Keyword: keyword}
		}
		return Match{Role: field.RoleUnclassified}
	case field.KindDate:
		if keyword, ok := matchKeyword(c.rules.PastDate, d.MachineName, d.LabelText); ok {
			return Match{Role: field.RolePastBoundedDate, Keyword: keyword}
		}
		return Match{Role: field.RoleUnclassified}
	default:
		if d.HasSignal() {
			return Match{Role: field.RolePlainText}
		}
		return Match{Role: field.RoleUnclassified}
	}
}

// Today returns the current date bound in DateLayout.
func (c *Classifier) Today() string {
	return c.now().Format(DateLayout)
}

// Bounds derives the input constraints for a role. Currency amounts get a
// cent step and a zero minimum; past-bounded dates are capped at today unless
// the field already declares an explicit maximum.
func (c *Classifier) Bounds(role field.Role, existing field.Bounds) field.Bounds {
	out := existing
	switch role {
	case field.RoleCurrencyAmount:
		out.Step = currencyStep
		out.Min = currencyMin
	case field.RolePastBoundedDate:
		if out.Max == "" {
			out.Max = c.Today()
		}
	}
	return out
}
