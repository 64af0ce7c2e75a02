package engine

import (
	"errors"

	"github.com/goliatone/go-formcalc/pkg/field"
)

// memHost is an in-memory Host used by the engine tests. When echo is set,
// every write is reported back to the engine synchronously, the way a DOM
// change event would be.
type memHost struct {
	scopes   map[field.ScopeID][]field.Input
	labels   map[field.ScopeID]*field.LabelIndex
	values   map[field.Ref]string
	readOnly map[field.Ref]bool
	bounds   map[field.Ref]field.Bounds
	invalid  map[field.Ref]error
	writes   map[field.Ref]int
	failRef  *field.Ref

	echo func(field.Ref)
}

func newMemHost() *memHost {
	return &memHost{
		scopes:   make(map[field.ScopeID][]field.Input),
		labels:   make(map[field.ScopeID]*field.LabelIndex),
		values:   make(map[field.Ref]string),
		readOnly: make(map[field.Ref]bool),
		bounds:   make(map[field.Ref]field.Bounds),
		invalid:  make(map[field.Ref]error),
		writes:   make(map[field.Ref]int),
	}
}

func (h *memHost) add(scope field.ScopeID, in field.Input) field.Ref {
	h.scopes[scope] = append(h.scopes[scope], in)
	ref := in.Ref(scope)
	h.values[ref] = in.Value
	return ref
}

func (h *memHost) remove(scope field.ScopeID, key string) {
	inputs := h.scopes[scope]
	out := inputs[:0]
	for _, in := range inputs {
		if in.Key() == key {
			continue
		}
		out = append(out, in)
	}
	h.scopes[scope] = out
	delete(h.values, field.Ref{Scope: scope, Key: key})
}

func (h *memHost) bind(scope field.ScopeID, id, label string) {
	idx, ok := h.labels[scope]
	if !ok {
		idx = field.NewLabelIndex()
		h.labels[scope] = idx
	}
	idx.Bind(id, label)
}

func (h *memHost) Fields(scope field.ScopeID) []field.Input {
	inputs := h.scopes[scope]
	out := make([]field.Input, len(inputs))
	for i, in := range inputs {
		in.Bounds = h.bounds[in.Ref(scope)]
		in.Value = h.values[in.Ref(scope)]
		out[i] = in
	}
	return out
}

func (h *memHost) Labels(scope field.ScopeID) field.Labels {
	if idx, ok := h.labels[scope]; ok {
		return idx
	}
	return nil
}

func (h *memHost) Value(ref field.Ref) string { return h.values[ref] }

func (h *memHost) WriteValue(ref field.Ref, value string) error {
	if h.failRef != nil && *h.failRef == ref {
		return errors.New("write rejected")
	}
	h.values[ref] = value
	h.writes[ref]++
	if h.echo != nil {
		h.echo(ref)
	}
	return nil
}

func (h *memHost) SetReadOnly(ref field.Ref) error {
	h.readOnly[ref] = true
	return nil
}

func (h *memHost) SetBounds(ref field.Ref, bounds field.Bounds) error {
	h.bounds[ref] = bounds
	return nil
}

func (h *memHost) ReportInvalid(ref field.Ref, err error) {
	h.invalid[ref] = err
}

// set simulates a user edit.
func (h *memHost) set(ref field.Ref, value string) {
	h.values[ref] = value
}
