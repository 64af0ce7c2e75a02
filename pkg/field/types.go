package field

import "strings"

// ScopeID identifies a grouping boundary (a form instance or a repeating row
// group). Fields only aggregate with fields of the same scope.
type ScopeID string

// Ref addresses a single field inside its scope. Key is the element identifier,
// falling back to the machine name when the element has no identifier.
type Ref struct {
	Scope ScopeID
	Key   string
}

// String renders the reference as scope/key, mostly for logs and reports.
func (r Ref) String() string {
	if r.Scope == "" {
		return r.Key
	}
	return string(r.Scope) + "/" + r.Key
}

// ValueKind is the declared kind of a field, derived from its input type.
type ValueKind int

const (
	KindText ValueKind = iota
	KindNumeric
	KindDate
)

func (k ValueKind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindDate:
		return "date"
	default:
		return "text"
	}
}

// KindFromInputType maps an HTML-style input type onto a ValueKind.
func KindFromInputType(inputType string) ValueKind {
	switch strings.ToLower(strings.TrimSpace(inputType)) {
	case "number", "numeric", "integer", "currency":
		return KindNumeric
	case "date", "datetime-local":
		return KindDate
	default:
		return KindText
	}
}

// Role is the semantic classification assigned to a field. Roles are derived
// on every classification pass and never stored with the field.
type Role int

const (
	RoleUnclassified Role = iota
	RoleCurrencyAmount
	RoleAggregateTotal
	RolePastBoundedDate
	RolePlainText
)

func (r Role) String() string {
	switch r {
	case RoleCurrencyAmount:
		return "currency_amount"
	case RoleAggregateTotal:
		return "aggregate_total"
	case RolePastBoundedDate:
		return "past_bounded_date"
	case RolePlainText:
		return "plain_text"
	default:
		return "unclassified"
	}
}

// Bounds carries the input constraints the classifier derives for a field.
// Empty strings mean "no constraint".
type Bounds struct {
	Min  string
	Max  string
	Step string
}

// IsZero reports whether no constraint is set.
func (b Bounds) IsZero() bool {
	return b.Min == "" && b.Max == "" && b.Step == ""
}

// Input is the raw identity and state of a field as enumerated by the host.
type Input struct {
	ID        string
	Name      string
	Container string
	InputType string
	Value     string
	Bounds    Bounds
	ReadOnly  bool
}

// Key returns the identifier used to build a Ref for the input.
func (in Input) Key() string {
	if id := strings.TrimSpace(in.ID); id != "" {
		return id
	}
	return strings.TrimSpace(in.Name)
}

// Ref builds the reference for the input inside scope.
func (in Input) Ref(scope ScopeID) Ref {
	return Ref{Scope: scope, Key: in.Key()}
}

// Kind derives the declared value kind from the input type.
func (in Input) Kind() ValueKind {
	return KindFromInputType(in.InputType)
}

// Descriptor is the normalized token set used for keyword matching. All text
// is lower-cased and trimmed.
type Descriptor struct {
	ID          string
	MachineName string
	LabelText   string
	Kind        ValueKind
}

// HasSignal reports whether either matching token carries any text.
func (d Descriptor) HasSignal() bool {
	return d.MachineName != "" || d.LabelText != ""
}
