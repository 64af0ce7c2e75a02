// Package aggregate partitions the classified fields of a scope into
// contributors and an aggregate, and computes the aggregate value from the
// contributors' current values. Everything here is pure; writing the result
// back to a form is the engine's job.
package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-formcalc/pkg/field"
)

// DefaultMinContributors arms aggregation as soon as one contributor exists.
const DefaultMinContributors = 1

// Policy controls when a binding is eligible for recomputation.
type Policy struct {
	MinContributors int `koanf:"min_contributors" yaml:"min_contributors"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{MinContributors: DefaultMinContributors}
}

func (p Policy) minContributors() int {
	if p.MinContributors < 1 {
		return DefaultMinContributors
	}
	return p.MinContributors
}

// Classified pairs a field reference with its role, in document order.
type Classified struct {
	Ref  field.Ref
	Role field.Role
}

// Binding is the contributor/aggregate partition of one scope.
// The aggregate is never part of Contributors. Ignored lists further
// aggregate candidates that lost the document-order tie-break.
type Binding struct {
	Scope        field.ScopeID
	Contributors []field.Ref
	Aggregate    *field.Ref
	Ignored      []field.Ref
	Armed        bool
}

// HasAggregate reports whether an aggregate field was bound.
func (b Binding) HasAggregate() bool {
	return b.Aggregate != nil
}

// IsContributor reports whether ref feeds the aggregate.
func (b Binding) IsContributor(ref field.Ref) bool {
	for _, c := range b.Contributors {
		if c == ref {
			return true
		}
	}
	return false
}

// IsAggregate reports whether ref is the bound aggregate.
func (b Binding) IsAggregate(ref field.Ref) bool {
	return b.Aggregate != nil && *b.Aggregate == ref
}

// Resolve builds the binding for a scope. Contributors are every currency
// amount field; the aggregate is the first aggregate-total field in document
// order. Fields outside scope are skipped.
func Resolve(scope field.ScopeID, fields []Classified, policy Policy) Binding {
	binding := Binding{Scope: scope}
	for _, f := range fields {
		if f.Ref.Scope != scope {
			continue
		}
		switch f.Role {
		case field.RoleCurrencyAmount:
			binding.Contributors = append(binding.Contributors, f.Ref)
		case field.RoleAggregateTotal:
			if binding.Aggregate == nil {
				ref := f.Ref
				binding.Aggregate = &ref
				continue
			}
			binding.Ignored = append(binding.Ignored, f.Ref)
		}
	}
	binding.Armed = binding.Aggregate != nil && len(binding.Contributors) >= policy.minContributors()
	return binding
}

// Values supplies the current raw value of a field.
type Values interface {
	Value(ref field.Ref) string
}

// ValueMap is a map-backed Values implementation.
type ValueMap map[field.Ref]string

// Value implements Values.
func (m ValueMap) Value(ref field.Ref) string {
	return m[ref]
}

// Result is the outcome of a recomputation.
type Result struct {
	Aggregate    field.Ref
	Value        decimal.Decimal
	Text         string
	ReadOnly     bool
	Contributors int
}

// Recompute sums the contributor values of an armed binding. ok is false when
// the binding is not armed, in which case aggregation is inert.
func Recompute(b Binding, values Values) (Result, bool) {
	if !b.Armed || b.Aggregate == nil {
		return Result{}, false
	}
	sum := decimal.Zero
	for _, ref := range b.Contributors {
		var raw string
		if values != nil {
			raw = values.Value(ref)
		}
		sum = sum.Add(ParseAmount(raw))
	}
	rounded := sum.Round(Places)
	return Result{
		Aggregate:    *b.Aggregate,
		Value:        rounded,
		Text:         rounded.StringFixed(Places),
		ReadOnly:     true,
		Contributors: len(b.Contributors),
	}, true
}
