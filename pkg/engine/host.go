package engine

import "github.com/goliatone/go-formcalc/pkg/field"

// Source is the read side of the form the engine observes.
type Source interface {
	// Fields enumerates the fields of scope in document order.
	Fields(scope field.ScopeID) []field.Input
	// Labels resolves labels for the fields of scope.
	Labels(scope field.ScopeID) field.Labels
	// Value returns the current raw value of a field.
	Value(ref field.Ref) string
}

// Sink receives the engine's outputs. Implementations apply them to markup,
// a prompt session, a document, and so on.
type Sink interface {
	WriteValue(ref field.Ref, value string) error
	SetReadOnly(ref field.Ref) error
	SetBounds(ref field.Ref, bounds field.Bounds) error
	// ReportInvalid signals a validation failure; rendering the message is
	// up to the host.
	ReportInvalid(ref field.Ref, err error)
}

// Host is the full contract between the engine and the form it augments.
type Host interface {
	Source
	Sink
}
