package formdef

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-formcalc/pkg/field"
)

// Changes lists the differences between two states of a form. Scopes in
// Structural had fields or labels added, removed or renamed; Values lists
// refs whose value changed inside scopes that are otherwise unchanged.
type Changes struct {
	Added      []field.ScopeID
	Removed    []field.ScopeID
	Structural []field.ScopeID
	Values     []field.Ref
}

// Empty reports whether no change was detected.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Structural) == 0 && len(c.Values) == 0
}

// Apply replaces the form's structure and user values with doc and returns
// what changed. Values of read-only fields that survive the reload are kept,
// together with their bounds, so aggregates written by the engine are not
// reverted by a file edit.
func (f *Form) Apply(doc *Document) (Changes, error) {
	next, err := New(doc, WithRowIDs(f.newRowID))
	if err != nil {
		return Changes{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for ref := range next.values {
		if !f.readOnly[ref] {
			continue
		}
		next.values[ref] = f.values[ref]
		next.readOnly[ref] = true
		if bounds, ok := f.bounds[ref]; ok {
			next.bounds[ref] = bounds
		}
	}
	for ref, bounds := range f.bounds {
		if _, ok := next.values[ref]; !ok {
			continue
		}
		if _, set := next.bounds[ref]; !set {
			next.bounds[ref] = bounds
		}
	}
	changes := diff(f, next)
	for ref, messages := range f.invalid {
		if value, ok := next.values[ref]; ok && value == f.values[ref] {
			next.invalid[ref] = messages
		}
	}

	f.id, f.title = next.id, next.title
	f.order, f.scopes = next.order, next.scopes
	f.values, f.readOnly = next.values, next.readOnly
	f.bounds, f.invalid = next.bounds, next.invalid
	return changes, nil
}

// Diff compares f with next without modifying either.
func (f *Form) Diff(next *Form) Changes {
	if f == next {
		return Changes{}
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	next.mu.RLock()
	defer next.mu.RUnlock()
	return diff(f, next)
}

func diff(prev, next *Form) Changes {
	var changes Changes
	added := make(map[field.ScopeID]struct{})
	removed := make(map[field.ScopeID]struct{})
	structural := make(map[field.ScopeID]struct{})

	for id := range prev.scopes {
		if _, ok := next.scopes[id]; !ok {
			removed[id] = struct{}{}
		}
	}
	for id, st := range next.scopes {
		old, ok := prev.scopes[id]
		if !ok {
			added[id] = struct{}{}
			continue
		}
		if !equalSignature(old.signature(), st.signature()) {
			structural[id] = struct{}{}
			continue
		}
		for _, in := range st.inputs() {
			ref := in.Ref(id)
			if prev.values[ref] != next.values[ref] {
				changes.Values = append(changes.Values, ref)
			}
		}
	}

	changes.Added = sortedScopes(added)
	changes.Removed = sortedScopes(removed)
	changes.Structural = sortedScopes(structural)
	sort.Slice(changes.Values, func(i, j int) bool {
		return changes.Values[i].String() < changes.Values[j].String()
	})
	return changes
}

// signature captures everything classification depends on: identity,
// declared type and resolved label of every field, in document order.
func (st *scopeState) signature() []string {
	labels := st.labelIndex()
	inputs := st.inputs()
	out := make([]string, len(inputs))
	for i, in := range inputs {
		out[i] = strings.Join([]string{
			in.Key(),
			in.Name,
			in.Container,
			in.InputType,
			field.ResolveLabel(in, labels),
			fmt.Sprint(in.ReadOnly),
		}, "\x00")
	}
	return out
}

func equalSignature(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
